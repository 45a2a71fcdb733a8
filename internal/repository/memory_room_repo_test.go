package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"medchat/internal/model"
)

func consultation(id, doctorID, patientID string) *model.Room {
	return &model.Room{
		ID:       id,
		RoomType: model.RoomDoctorPatient,
		Members:  []string{"doc", "pat"},
		DoctorPatientInfo: &model.DoctorPatientInfo{
			DoctorID:  doctorID,
			PatientID: patientID,
			Status:    model.ConsultationActive,
		},
	}
}

func TestMemoryCreateRejectsSecondActiveConsultation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()

	if err := repo.Create(ctx, consultation("r1", "d1", "p1")); err != nil {
		t.Fatal(err)
	}

	err := repo.Create(ctx, consultation("r2", "d1", "p1"))
	var dup *DuplicateConsultationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateConsultationError, got %v", err)
	}
	if dup.RoomID != "r1" {
		t.Fatalf("expected blocking room r1, got %s", dup.RoomID)
	}
	if !errors.Is(err, ErrDuplicateActiveConsultation) {
		t.Fatal("expected error to unwrap to ErrDuplicateActiveConsultation")
	}

	// another pair is unaffected
	if err := repo.Create(ctx, consultation("r3", "d1", "p2")); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryCompletedConsultationFreesPair(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()

	if err := repo.Create(ctx, consultation("r1", "d1", "p1")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.UpdateConsultationStatus(ctx, "r1", model.ConsultationActive, model.ConsultationCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.UpdateConsultationStatus(ctx, "r1", model.ConsultationActive, model.ConsultationCompleted); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict on second completion, got %v", err)
	}
	if err := repo.Create(ctx, consultation("r2", "d1", "p1")); err != nil {
		t.Fatalf("expected new consultation after completion, got %v", err)
	}
}

func TestMemoryAppendDedupesClientMsgID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	msg := &model.Message{ID: "m1", ClientMsgID: "c1", Username: "alice", Text: "hi"}
	if err := repo.AppendMessage(ctx, "r1", msg); err != nil {
		t.Fatal(err)
	}
	retry := &model.Message{ID: "m2", ClientMsgID: "c1", Username: "alice", Text: "hi"}
	if err := repo.AppendMessage(ctx, "r1", retry); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	room, _ := repo.GetByID(ctx, "r1")
	if len(room.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(room.Messages))
	}
}

func TestMemoryAppendScopesClientMsgIDToAuthor(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice", "bob"}})

	if err := repo.AppendMessage(ctx, "r1", &model.Message{ID: "m1", ClientMsgID: "1", Username: "alice", Type: model.MessageUser}); err != nil {
		t.Fatal(err)
	}
	if err := repo.AppendMessage(ctx, "r1", &model.Message{ID: "m2", ClientMsgID: "1", Username: "bob", Type: model.MessageUser}); err != nil {
		t.Fatalf("same client id from another author should be stored, got %v", err)
	}

	room, _ := repo.GetByID(ctx, "r1")
	if len(room.Messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(room.Messages))
	}
}

func TestMemoryAppendRequiresLiveMembership(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice", "bob"}})
	repo.RemoveMember(ctx, "r1", "bob")

	err := repo.AppendMessage(ctx, "r1", &model.Message{ID: "m1", Username: "bob", Type: model.MessageUser, Text: "hi"})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	// the leave announcement is authored by the leaver and still lands
	if err := repo.AppendMessage(ctx, "r1", &model.Message{ID: "m2", Username: "bob", Type: model.MessageSystem, Text: "bob left the room"}); err != nil {
		t.Fatal(err)
	}

	room, _ := repo.GetByID(ctx, "r1")
	if len(room.Messages) != 1 || room.Messages[0].Type != model.MessageSystem {
		t.Fatalf("expected only the system message, got %+v", room.Messages)
	}
}

func TestMemoryUpdateMembersCollapsesRepeats(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	if err := repo.UpdateMembers(ctx, "r1", []string{"a", "b", "a", "c", "b"}); err != nil {
		t.Fatal(err)
	}
	room, _ := repo.GetByID(ctx, "r1")
	if fmt.Sprint(room.Members) != "[a b c]" {
		t.Fatalf("expected [a b c], got %v", room.Members)
	}
}

func TestMemoryConcurrentAppendsKeepEveryMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo.AppendMessage(ctx, "r1", &model.Message{
				ID:        fmt.Sprintf("m%d", i),
				Username:  "alice",
				CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	room, _ := repo.GetByID(ctx, "r1")
	if len(room.Messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(room.Messages))
	}
	for i := 1; i < len(room.Messages); i++ {
		if room.Messages[i].CreatedAt.Before(room.Messages[i-1].CreatedAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestMemoryMembership(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	room, err := repo.AddMember(ctx, "r1", "bob", "u-bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Members) != 2 || room.Messages != nil {
		t.Fatalf("unexpected room after join: %+v", room)
	}
	if _, err := repo.AddMember(ctx, "r1", "bob", ""); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}

	room, err = repo.RemoveMember(ctx, "r1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Members) != 1 || room.Members[0] != "bob" {
		t.Fatalf("unexpected members after leave: %v", room.Members)
	}
	if _, err := repo.RemoveMember(ctx, "r1", "alice"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := repo.AddMember(ctx, "missing", "bob", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	room, _ := repo.GetByID(ctx, "r1")
	room.Members[0] = "mallory"

	again, _ := repo.GetByID(ctx, "r1")
	if again.Members[0] != "alice" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, &model.Room{ID: "r1", Members: []string{"alice"}})

	if err := repo.Delete(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFindActiveByPatient(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepo()
	repo.Create(ctx, consultation("r1", "d1", "p1"))

	room, err := repo.FindActiveByPatient(ctx, "p1", "pat")
	if err != nil {
		t.Fatal(err)
	}
	if room.ID != "r1" {
		t.Fatalf("expected r1, got %s", room.ID)
	}
	if _, err := repo.FindActiveByPatient(ctx, "p1", "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member username, got %v", err)
	}
}
