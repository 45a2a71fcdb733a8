package service

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"medchat/internal/model"
	"medchat/internal/repository"
)

type sentEvent struct {
	channel string // empty for BroadcastAll
	event   string
	payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) Publish(channel, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{channel: channel, event: event, payload: payload})
}

func (b *recordingBroadcaster) BroadcastAll(event string, payload interface{}) {
	b.Publish("", event, payload)
}

func (b *recordingBroadcaster) count(channel, event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.channel == channel && e.event == event {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []*model.Message
}

func (n *recordingNotifier) Notify(ctx context.Context, room *model.Room, msg *model.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, msg)
}

func newTestChatService() (*ChatService, *recordingBroadcaster, *recordingNotifier) {
	b := &recordingBroadcaster{}
	n := &recordingNotifier{}
	svc := NewChatService(NewRoomService(repository.NewMemoryRoomRepo()), b, n, "patient", zerolog.Nop())
	return svc, b, n
}

func TestChatCreateRoomEvents(t *testing.T) {
	svc, b, _ := newTestChatService()

	room, err := svc.CreateGeneralRoom(context.Background(), "alice", "General")
	if err != nil {
		t.Fatal(err)
	}
	if b.count("alice", EventNewRoom) != 1 {
		t.Fatal("expected newRoom on the creator channel")
	}
	if b.count("", EventRoomCreated) != 1 {
		t.Fatal("expected roomCreated broadcast")
	}
	if room.ID == "" {
		t.Fatal("expected room id")
	}
}

func TestChatConsultationEvents(t *testing.T) {
	svc, b, _ := newTestChatService()
	ctx := context.Background()

	room, err := svc.CreateDoctorPatientRoom(ctx, testPair)
	if err != nil {
		t.Fatal(err)
	}
	if b.count("dr.a", EventNewDoctorPatientRoom) != 1 || b.count("pat.b", EventNewDoctorPatientRoom) != 1 {
		t.Fatal("expected newDoctorPatientRoom for both participants")
	}

	if _, err := svc.CompleteConsultation(ctx, room.ID, "d1"); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []string{"dr.a", "pat.b", room.ID} {
		if b.count(ch, EventConsultationCompleted) != 1 {
			t.Fatalf("expected consultationCompleted on %s", ch)
		}
	}
}

func TestChatSendMessageFansOut(t *testing.T) {
	svc, b, n := newTestChatService()
	ctx := context.Background()
	room, _ := svc.CreateGeneralRoom(ctx, "alice", "General")
	svc.JoinRoom(ctx, room.ID, "bob")

	msg, err := svc.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Username: "alice", Text: "hi", ClientMsgID: "c1"}, "rest")
	if err != nil {
		t.Fatal(err)
	}
	if b.count(room.ID, EventChatMessage) != 1 {
		t.Fatal("expected chatMessage on the room channel")
	}
	if b.count("", EventDoctorMessage) != 0 {
		t.Fatal("doctorMessage is only for patient senders")
	}
	if len(n.calls) != 1 || n.calls[0].ID != msg.ID {
		t.Fatalf("expected one notification for %s, got %d", msg.ID, len(n.calls))
	}

	// retried send is stored once and not re-broadcast
	again, err := svc.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Username: "alice", Text: "hi", ClientMsgID: "c1"}, "rest")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != msg.ID {
		t.Fatalf("expected replayed id %s, got %s", msg.ID, again.ID)
	}
	if b.count(room.ID, EventChatMessage) != 1 || len(n.calls) != 1 {
		t.Fatal("replayed send must not fan out again")
	}
}

func TestChatPatientMessageAlertsDoctors(t *testing.T) {
	svc, b, _ := newTestChatService()
	ctx := context.Background()
	room, _ := svc.CreateGeneralRoom(ctx, "patient.jane", "Help")

	if _, err := svc.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Username: "patient.jane", Text: "hello"}, "realtime"); err != nil {
		t.Fatal(err)
	}
	if b.count("", EventDoctorMessage) != 1 {
		t.Fatal("expected doctorMessage broadcast for a patient sender")
	}
}

func TestChatJoinLeaveEvents(t *testing.T) {
	svc, b, _ := newTestChatService()
	ctx := context.Background()
	room, _ := svc.CreateGeneralRoom(ctx, "alice", "General")

	svc.JoinRoom(ctx, room.ID, "bob")
	if b.count(room.ID, EventMemberJoined) != 1 || b.count(room.ID, EventChatMessage) != 0 {
		t.Fatal("second member joins without an announcement")
	}
	svc.JoinRoom(ctx, room.ID, "carol")
	if b.count(room.ID, EventMemberJoined) != 2 || b.count(room.ID, EventChatMessage) != 1 {
		t.Fatal("third member join should be announced")
	}

	if _, err := svc.LeaveRoom(ctx, room.ID, "carol"); err != nil {
		t.Fatal(err)
	}
	if b.count(room.ID, EventMemberLeft) != 1 || b.count(room.ID, EventChatMessage) != 2 {
		t.Fatal("leave with two remaining should be announced")
	}
}

func TestChatDeleteRoomEvent(t *testing.T) {
	svc, b, _ := newTestChatService()
	ctx := context.Background()
	room, _ := svc.CreateGeneralRoom(ctx, "alice", "General")

	if err := svc.DeleteRoom(ctx, room.ID, "bob"); err == nil {
		t.Fatal("expected forbidden for non-creator")
	}
	if b.count("", EventRoomDeleted) != 0 {
		t.Fatal("failed delete must not broadcast")
	}
	if err := svc.DeleteRoom(ctx, room.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if b.count("", EventRoomDeleted) != 1 {
		t.Fatal("expected roomDeleted broadcast")
	}
}
