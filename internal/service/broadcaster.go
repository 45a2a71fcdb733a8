package service

import (
	"context"

	"medchat/internal/model"
)

// Realtime event names shared by the chat and notifier hubs
const (
	EventChatMessage           = "chatMessage"
	EventDoctorMessage         = "doctorMessage"
	EventMemberJoined          = "memberJoined"
	EventMemberLeft            = "memberLeft"
	EventNewRoom               = "newRoom"
	EventRoomCreated           = "roomCreated"
	EventNewDoctorPatientRoom  = "newDoctorPatientRoom"
	EventRoomDeleted           = "roomDeleted"
	EventConsultationCompleted = "consultationCompleted"
	EventNewNotification       = "new_notification"
	EventError                 = "error"
)

// Broadcaster interface for WebSocket fan-out (avoids import cycle).
// Channels are either a room id or a username.
type Broadcaster interface {
	Publish(channel string, event string, payload interface{})
	BroadcastAll(event string, payload interface{})
}

// Notifier hands message notifications to the cross-service relay.
// Implementations swallow and log their own failures.
type Notifier interface {
	Notify(ctx context.Context, room *model.Room, msg *model.Message)
}
