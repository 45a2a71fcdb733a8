package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"medchat/internal/metrics"
	"medchat/internal/model"
)

// ChatService runs an engine operation and then fans its outcome out:
// realtime events through the Broadcaster, offline alerts through the Notifier.
type ChatService struct {
	rooms         *RoomService
	broadcaster   Broadcaster
	notifier      Notifier
	patientMarker string
	logger        zerolog.Logger
}

// NewChatService creates the delivery orchestrator. The broadcaster must be
// the process-wide hub constructed at startup.
func NewChatService(rooms *RoomService, broadcaster Broadcaster, notifier Notifier, patientMarker string, logger zerolog.Logger) *ChatService {
	return &ChatService{
		rooms:         rooms,
		broadcaster:   broadcaster,
		notifier:      notifier,
		patientMarker: patientMarker,
		logger:        logger.With().Str("component", "chat").Logger(),
	}
}

// Rooms exposes the engine for read-only handlers
func (s *ChatService) Rooms() *RoomService {
	return s.rooms
}

type membershipEvent struct {
	RoomID   string   `json:"roomId"`
	Username string   `json:"username"`
	Members  []string `json:"members"`
}

type roomDeletedEvent struct {
	RoomID string `json:"roomId"`
}

type consultationEvent struct {
	RoomID string      `json:"roomId"`
	Room   *model.Room `json:"room"`
}

func (s *ChatService) CreateGeneralRoom(ctx context.Context, creator, roomName string) (*model.Room, error) {
	room, err := s.rooms.CreateGeneralRoom(ctx, creator, roomName)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Publish(creator, EventNewRoom, room)
	s.broadcaster.BroadcastAll(EventRoomCreated, room)
	s.logger.Info().Str("room_id", room.ID).Str("creator", creator).Msg("room created")
	return room, nil
}

func (s *ChatService) CreateDoctorPatientRoom(ctx context.Context, in CreateConsultationInput) (*model.Room, error) {
	room, err := s.rooms.CreateDoctorPatientRoom(ctx, in)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Publish(in.DoctorUsername, EventNewDoctorPatientRoom, room)
	s.broadcaster.Publish(in.PatientUsername, EventNewDoctorPatientRoom, room)
	s.logger.Info().
		Str("room_id", room.ID).
		Str("doctor_id", in.DoctorID).
		Str("patient_id", in.PatientID).
		Msg("consultation opened")
	return room, nil
}

func (s *ChatService) JoinRoom(ctx context.Context, roomID, username string) (*model.Room, error) {
	change, err := s.rooms.JoinRoom(ctx, roomID, username)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Publish(roomID, EventMemberJoined, membershipEvent{
		RoomID:   roomID,
		Username: username,
		Members:  change.Room.Members,
	})
	if change.Announcement != nil {
		metrics.SystemMessages.WithLabelValues("join").Inc()
		s.broadcaster.Publish(roomID, EventChatMessage, model.RoomMessage{Message: *change.Announcement, RoomID: roomID})
	}
	return change.Room, nil
}

func (s *ChatService) LeaveRoom(ctx context.Context, roomID, username string) (*model.Room, error) {
	change, err := s.rooms.LeaveRoom(ctx, roomID, username)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Publish(roomID, EventMemberLeft, membershipEvent{
		RoomID:   roomID,
		Username: username,
		Members:  change.Room.Members,
	})
	if change.Announcement != nil {
		metrics.SystemMessages.WithLabelValues("leave").Inc()
		s.broadcaster.Publish(roomID, EventChatMessage, model.RoomMessage{Message: *change.Announcement, RoomID: roomID})
	}
	return change.Room, nil
}

// SendMessage stores the message, broadcasts it to the room channel and
// notifies every other member through the relay. path labels the metric
// ("rest" or "realtime").
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput, path string) (*model.Message, error) {
	res, err := s.rooms.SendMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		s.logger.Debug().Str("room_id", in.RoomID).Str("client_msg_id", in.ClientMsgID).Msg("duplicate send ignored")
		return res.Message, nil
	}
	metrics.MessagesSent.WithLabelValues(string(res.Room.RoomType), path).Inc()

	payload := model.RoomMessage{Message: *res.Message, RoomID: in.RoomID}
	s.broadcaster.Publish(in.RoomID, EventChatMessage, payload)

	if s.isPatient(in.Username) {
		s.broadcaster.BroadcastAll(EventDoctorMessage, payload)
	}

	s.notifier.Notify(ctx, res.Room, res.Message)
	return res.Message, nil
}

func (s *ChatService) DeleteRoom(ctx context.Context, roomID, requester string) error {
	if _, err := s.rooms.DeleteRoom(ctx, roomID, requester); err != nil {
		return err
	}
	s.broadcaster.BroadcastAll(EventRoomDeleted, roomDeletedEvent{RoomID: roomID})
	s.logger.Info().Str("room_id", roomID).Str("by", requester).Msg("room deleted")
	return nil
}

func (s *ChatService) CompleteConsultation(ctx context.Context, roomID, doctorID string) (*model.Room, error) {
	room, err := s.rooms.CompleteConsultation(ctx, roomID, doctorID)
	if err != nil {
		return nil, err
	}
	event := consultationEvent{RoomID: roomID, Room: room}
	for _, member := range room.Members {
		s.broadcaster.Publish(member, EventConsultationCompleted, event)
	}
	s.broadcaster.Publish(roomID, EventConsultationCompleted, event)
	s.logger.Info().Str("room_id", roomID).Str("doctor_id", doctorID).Msg("consultation completed")
	return room, nil
}

// isPatient matches the role marker carried in patient login names
func (s *ChatService) isPatient(username string) bool {
	return s.patientMarker != "" && strings.Contains(username, s.patientMarker)
}
