package model

import "time"

// NotificationBody is the message summary carried to offline recipients
type NotificationBody struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
}

// Notification is the broker record published on the notifications channel
type Notification struct {
	UserID    string            `json:"userId"`
	Message   *NotificationBody `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// Valid reports whether the record can be routed to a recipient
func (n *Notification) Valid() bool {
	return n != nil && n.UserID != "" && n.Message != nil
}
