package model

import "time"

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

// Message is a single entry in a room's history.
// Username is the login identity and is what membership checks use;
// Sender carries the internal user id supplied by the caller.
type Message struct {
	ID          string      `json:"id" bson:"id"`
	ClientMsgID string      `json:"clientMsgId,omitempty" bson:"clientMsgId,omitempty"`
	Sender      string      `json:"sender" bson:"sender"`
	Username    string      `json:"username" bson:"username"`
	Text        string      `json:"text" bson:"text"`
	Type        MessageType `json:"type" bson:"type"`
	CreatedAt   time.Time   `json:"createdAt" bson:"createdAt"`
}

// RoomMessage is the realtime payload for chatMessage / doctorMessage
type RoomMessage struct {
	Message
	RoomID string `json:"roomId"`
}

// VisibleMessages is the display projection of a room's history.
// Direct (two member) rooms never show membership announcements.
func VisibleMessages(room *Room) []Message {
	if len(room.Members) != 2 {
		out := make([]Message, len(room.Messages))
		copy(out, room.Messages)
		return out
	}
	out := make([]Message, 0, len(room.Messages))
	for _, m := range room.Messages {
		if m.Type == MessageSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
