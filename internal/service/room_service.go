package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"medchat/internal/model"
	"medchat/internal/repository"
)

// RoomService enforces membership and message rules on top of the room store.
// It does not touch any transport; ChatService composes it with the hub and relay.
type RoomService struct {
	roomRepo repository.RoomRepo
	now      func() time.Time
}

// NewRoomService creates a new room service
func NewRoomService(roomRepo repository.RoomRepo) *RoomService {
	return &RoomService{
		roomRepo: roomRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateConsultationInput pairs a doctor with a patient
type CreateConsultationInput struct {
	DoctorID        string
	PatientID       string
	DoctorUsername  string
	PatientUsername string
}

// SendMessageInput is a user-authored message. ClientMsgID is optional;
// when set, a retried send by the same username returns the stored message
// instead of appending twice.
type SendMessageInput struct {
	RoomID      string
	Sender      string
	Username    string
	Text        string
	ClientMsgID string
}

// SendResult is what a successful send produced
type SendResult struct {
	Room     *model.Room
	Message  *model.Message
	Replayed bool // the message was already stored under the same client id
}

// MembershipChange is the outcome of a join or leave.
// Announcement is nil when the member-count rule suppressed the system message.
type MembershipChange struct {
	Room         *model.Room
	Announcement *model.Message
}

// CreateGeneralRoom creates a room whose only member is its creator
func (s *RoomService) CreateGeneralRoom(ctx context.Context, creator, roomName string) (*model.Room, error) {
	if creator == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	room := &model.Room{
		ID:       uuid.NewString(),
		RoomName: roomName,
		RoomType: model.RoomGeneral,
		Members:  []string{creator},
		Creator:  creator,
		Messages: []model.Message{},
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, unavailable("create room", err)
	}
	return room, nil
}

// CreateDoctorPatientRoom opens a consultation room. At most one active
// consultation may exist per doctor/patient pair.
func (s *RoomService) CreateDoctorPatientRoom(ctx context.Context, in CreateConsultationInput) (*model.Room, error) {
	if in.DoctorID == "" || in.PatientID == "" || in.DoctorUsername == "" || in.PatientUsername == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}

	room := &model.Room{
		ID:        uuid.NewString(),
		RoomName:  fmt.Sprintf("Consultation: %s - %s", in.DoctorUsername, in.PatientUsername),
		RoomType:  model.RoomDoctorPatient,
		Members:   []string{in.DoctorUsername, in.PatientUsername},
		MemberIDs: []string{in.DoctorID, in.PatientID},
		Creator:   in.DoctorUsername,
		CreatorID: in.DoctorID,
		DoctorPatientInfo: &model.DoctorPatientInfo{
			DoctorID:         in.DoctorID,
			PatientID:        in.PatientID,
			ConsultationDate: s.now(),
			Status:           model.ConsultationActive,
		},
		Messages: []model.Message{},
	}

	err := s.roomRepo.Create(ctx, room)
	var dup *repository.DuplicateConsultationError
	if errors.As(err, &dup) {
		return nil, &ConflictError{RoomID: dup.RoomID}
	}
	if err != nil {
		return nil, unavailable("create consultation", err)
	}
	return room, nil
}

// GetRoom returns the full room including history
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, storeErr("get room", err)
	}
	return room, nil
}

// RoomsForMember lists the rooms username belongs to, most recently active first
func (s *RoomService) RoomsForMember(ctx context.Context, username string) ([]*model.Room, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	rooms, err := s.roomRepo.FindByMember(ctx, username)
	if err != nil {
		return nil, unavailable("list rooms", err)
	}
	return rooms, nil
}

// JoinRoom adds username to the room. A join announcement is stored only
// when the room grows past two members.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, username string) (*MembershipChange, error) {
	if roomID == "" || username == "" {
		return nil, fmt.Errorf("%w: roomId and username are required", ErrInvalidInput)
	}

	room, err := s.roomRepo.AddMember(ctx, roomID, username, "")
	if err != nil {
		return nil, storeErr("join room", err)
	}

	change := &MembershipChange{Room: room}
	if len(room.Members) > 2 {
		msg, err := s.announce(ctx, roomID, username, username+" joined the room")
		if err != nil {
			return nil, err
		}
		change.Announcement = msg
	}
	return change, nil
}

// LeaveRoom removes username from the room. A leave announcement is stored
// only while at least two members remain to read it.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, username string) (*MembershipChange, error) {
	if roomID == "" || username == "" {
		return nil, fmt.Errorf("%w: roomId and username are required", ErrInvalidInput)
	}

	room, err := s.roomRepo.RemoveMember(ctx, roomID, username)
	if err != nil {
		return nil, storeErr("leave room", err)
	}

	change := &MembershipChange{Room: room}
	if len(room.Members) >= 2 {
		msg, err := s.announce(ctx, roomID, username, username+" left the room")
		if err != nil {
			return nil, err
		}
		change.Announcement = msg
	}
	return change, nil
}

// SendMessage appends a user message after checking the author is a current member
func (s *RoomService) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	if in.RoomID == "" || in.Username == "" {
		return nil, fmt.Errorf("%w: roomId and username are required", ErrInvalidInput)
	}

	room, err := s.roomRepo.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, storeErr("send message", err)
	}
	if !room.HasMember(in.Username) {
		return nil, ErrNotMember
	}

	msg := &model.Message{
		ID:          ulid.Make().String(),
		ClientMsgID: in.ClientMsgID,
		Sender:      in.Sender,
		Username:    in.Username,
		Text:        in.Text,
		Type:        model.MessageUser,
		CreatedAt:   s.now(),
	}

	err = s.roomRepo.AppendMessage(ctx, in.RoomID, msg)
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return s.replay(ctx, in)
	}
	if err != nil {
		return nil, storeErr("send message", err)
	}
	return &SendResult{Room: room, Message: msg}, nil
}

// ListMessages returns the display projection of the room history for a member
func (s *RoomService) ListMessages(ctx context.Context, roomID, requester string) ([]model.Message, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	if !room.HasMember(requester) {
		return nil, ErrNotMember
	}
	return model.VisibleMessages(room), nil
}

// DeleteRoom removes the room and its history. Only the creator may do this.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, requester string) (*model.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, storeErr("delete room", err)
	}
	if room.Creator != requester {
		return nil, fmt.Errorf("%w: only the room creator can delete it", ErrForbidden)
	}
	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		return nil, unavailable("delete room", err)
	}
	return room, nil
}

// CompleteConsultation closes an active doctor_patient room. The room is kept;
// clients disable chat once the status is completed.
func (s *RoomService) CompleteConsultation(ctx context.Context, roomID, doctorID string) (*model.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, storeErr("complete consultation", err)
	}
	if room.RoomType != model.RoomDoctorPatient || room.DoctorPatientInfo == nil {
		return nil, ErrInvalidRoomType
	}
	if room.DoctorPatientInfo.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: only the assigned doctor can complete this consultation", ErrForbidden)
	}
	if !room.DoctorPatientInfo.Status.CanTransitionTo(model.ConsultationCompleted) {
		return nil, ErrInvalidState
	}

	updated, err := s.roomRepo.UpdateConsultationStatus(ctx, roomID, model.ConsultationActive, model.ConsultationCompleted)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, storeErr("complete consultation", err)
	}
	return updated, nil
}

// FindDoctorPatientRoom returns the active consultation for the pair when both usernames are members
func (s *RoomService) FindDoctorPatientRoom(ctx context.Context, in CreateConsultationInput) (*model.Room, error) {
	if in.DoctorID == "" || in.PatientID == "" || in.DoctorUsername == "" || in.PatientUsername == "" {
		return nil, fmt.Errorf("%w: doctor id, patient id and usernames are required", ErrInvalidInput)
	}
	room, err := s.roomRepo.FindActiveDoctorPatient(ctx, in.DoctorID, in.PatientID)
	if err != nil {
		return nil, storeErr("find consultation", err)
	}
	if !room.HasMember(in.DoctorUsername) || !room.HasMember(in.PatientUsername) {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// FindPatientRoom returns the patient's active consultation room
func (s *RoomService) FindPatientRoom(ctx context.Context, patientID, patientUsername string) (*model.Room, error) {
	if patientID == "" || patientUsername == "" {
		return nil, fmt.Errorf("%w: patient id and username are required", ErrInvalidInput)
	}
	room, err := s.roomRepo.FindActiveByPatient(ctx, patientID, patientUsername)
	if err != nil {
		return nil, storeErr("find patient room", err)
	}
	return room, nil
}

func (s *RoomService) announce(ctx context.Context, roomID, username, text string) (*model.Message, error) {
	msg := &model.Message{
		ID:        ulid.Make().String(),
		Username:  username,
		Text:      text,
		Type:      model.MessageSystem,
		CreatedAt: s.now(),
	}
	if err := s.roomRepo.AppendMessage(ctx, roomID, msg); err != nil {
		return nil, storeErr("announce", err)
	}
	return msg, nil
}

func (s *RoomService) replay(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	room, err := s.roomRepo.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, storeErr("send message", err)
	}
	for i := range room.Messages {
		if room.Messages[i].Username == in.Username && room.Messages[i].ClientMsgID == in.ClientMsgID {
			msg := room.Messages[i]
			return &SendResult{Room: room, Message: &msg, Replayed: true}, nil
		}
	}
	return nil, unavailable("send message", repository.ErrDuplicateMessage)
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, repository.ErrAlreadyMember):
		return ErrAlreadyMember
	case errors.Is(err, repository.ErrNotMember):
		return ErrNotMember
	default:
		return unavailable(op, err)
	}
}
