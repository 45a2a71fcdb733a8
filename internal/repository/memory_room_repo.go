package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"medchat/internal/model"
)

// MemoryRoomRepo keeps rooms in process memory. Used for local runs
// (ROOM_STORE=memory) and as the store behind service tests.
type MemoryRoomRepo struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room
	now   func() time.Time
}

func NewMemoryRoomRepo() *MemoryRoomRepo {
	return &MemoryRoomRepo{
		rooms: make(map[string]*model.Room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRoomRepo) Create(ctx context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room.IsActiveConsultation() {
		if existing := r.activeConsultation(room.DoctorPatientInfo.DoctorID, room.DoctorPatientInfo.PatientID); existing != nil {
			return &DuplicateConsultationError{RoomID: existing.ID}
		}
	}

	now := r.now()
	room.CreatedAt = now
	room.UpdatedAt = now
	r.rooms[room.ID] = room.Clone()
	return nil
}

func (r *MemoryRoomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

func (r *MemoryRoomRepo) FindByMember(ctx context.Context, username string) ([]*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := []*model.Room{}
	for _, room := range r.rooms {
		if room.HasMember(username) {
			c := room.Clone()
			c.Messages = nil
			rooms = append(rooms, c)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (r *MemoryRoomRepo) FindActiveDoctorPatient(ctx context.Context, doctorID, patientID string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if room := r.activeConsultation(doctorID, patientID); room != nil {
		return room.Clone(), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryRoomRepo) FindActiveByPatient(ctx context.Context, patientID, patientUsername string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if room.IsActiveConsultation() &&
			room.DoctorPatientInfo.PatientID == patientID &&
			room.HasMember(patientUsername) {
			return room.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRoomRepo) AppendMessage(ctx context.Context, roomID string, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	// authorship is checked against the live member list, not the caller's snapshot
	if msg.Type == model.MessageUser && !room.HasMember(msg.Username) {
		return ErrNotMember
	}
	if msg.ClientMsgID != "" {
		for _, m := range room.Messages {
			if m.Username == msg.Username && m.ClientMsgID == msg.ClientMsgID {
				return ErrDuplicateMessage
			}
		}
	}

	stored := *msg
	// history stays chronological even if the caller's clock lags
	if n := len(room.Messages); n > 0 && stored.CreatedAt.Before(room.Messages[n-1].CreatedAt) {
		stored.CreatedAt = room.Messages[n-1].CreatedAt
	}
	room.Messages = append(room.Messages, stored)
	room.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRoomRepo) AddMember(ctx context.Context, roomID, username, memberID string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if room.HasMember(username) {
		return nil, ErrAlreadyMember
	}
	room.Members = append(room.Members, username)
	if memberID != "" && !contains(room.MemberIDs, memberID) {
		room.MemberIDs = append(room.MemberIDs, memberID)
	}
	room.UpdatedAt = r.now()
	return r.withoutHistory(room), nil
}

func (r *MemoryRoomRepo) RemoveMember(ctx context.Context, roomID, username string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if !room.HasMember(username) {
		return nil, ErrNotMember
	}
	members := room.Members[:0]
	for _, m := range room.Members {
		if m != username {
			members = append(members, m)
		}
	}
	room.Members = members
	room.UpdatedAt = r.now()
	return r.withoutHistory(room), nil
}

func (r *MemoryRoomRepo) UpdateMembers(ctx context.Context, roomID string, members []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.Members = uniqueMembers(members)
	room.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRoomRepo) UpdateConsultationStatus(ctx context.Context, roomID string, from, to model.ConsultationStatus) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if room.RoomType != model.RoomDoctorPatient || room.DoctorPatientInfo == nil || room.DoctorPatientInfo.Status != from {
		return nil, ErrStatusConflict
	}
	room.DoctorPatientInfo.Status = to
	room.UpdatedAt = r.now()
	return r.withoutHistory(room), nil
}

func (r *MemoryRoomRepo) Delete(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)
	return nil
}

func (r *MemoryRoomRepo) activeConsultation(doctorID, patientID string) *model.Room {
	for _, room := range r.rooms {
		if room.IsActiveConsultation() &&
			room.DoctorPatientInfo.DoctorID == doctorID &&
			room.DoctorPatientInfo.PatientID == patientID {
			return room
		}
	}
	return nil
}

// withoutHistory mirrors the Mongo projection used on updates
func (r *MemoryRoomRepo) withoutHistory(room *model.Room) *model.Room {
	c := room.Clone()
	c.Messages = nil
	return c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// uniqueMembers drops repeated usernames, keeping first-seen order
func uniqueMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if !contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
