package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medchat/internal/cache"
	"medchat/internal/model"
	"medchat/internal/service"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestPublisherNotifiesEveryoneButAuthor(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	pub := NewPublisher(client, DefaultChannel, zerolog.Nop())
	room := &model.Room{ID: "r1", Members: []string{"alice", "bob", "carol"}}
	pub.Notify(ctx, room, &model.Message{Username: "alice", Text: "hi"})
	pub.Close()

	got := map[string]*model.Notification{}
	ch := sub.Channel()
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var n model.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Fatal(err)
			}
			got[n.UserID] = &n
		case <-timeout:
			t.Fatalf("expected 2 notifications, got %d", len(got))
		}
	}

	if _, ok := got["alice"]; ok {
		t.Fatal("author must not be notified")
	}
	bob := got["bob"]
	if bob == nil || bob.Message.RoomName != "Chat room" || bob.Message.Text != "hi" || bob.Message.Sender != "alice" {
		t.Fatalf("unexpected record for bob: %+v", bob)
	}
}

func TestPublisherSurvivesBrokerOutage(t *testing.T) {
	// nothing listens on this port
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	pub := NewPublisher(client, DefaultChannel, zerolog.Nop())
	pub.Notify(context.Background(), &model.Room{ID: "r1", Members: []string{"alice", "bob"}}, &model.Message{Username: "alice"})

	done := make(chan struct{})
	go func() {
		pub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("publisher did not give up on an unreachable broker")
	}
}

func TestPublisherSkipsNotifyAfterClose(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	pub := NewPublisher(client, DefaultChannel, zerolog.Nop())
	room := &model.Room{ID: "r1", Members: []string{"alice", "bob"}}

	// sends racing shutdown must neither panic nor hold Close open
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Notify(ctx, room, &model.Message{Username: "alice", Text: "racing"})
		}()
	}
	closed := make(chan struct{})
	go func() {
		pub.Close()
		close(closed)
	}()
	wg.Wait()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	// drain whatever the racing sends managed to publish before Close
	ch := sub.Channel()
	for drained := false; !drained; {
		select {
		case <-ch:
		case <-time.After(200 * time.Millisecond):
			drained = true
		}
	}

	pub.Notify(ctx, room, &model.Message{Username: "alice", Text: "late"})
	select {
	case msg := <-ch:
		t.Fatalf("notification published after Close: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
	pub.Close()
}

type fakeChannels struct {
	mu        sync.Mutex
	online    map[string]int
	published []string
}

func (f *fakeChannels) Publish(channel, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event == service.EventNewNotification {
		f.published = append(f.published, channel)
	}
}

func (f *fakeChannels) SubscriberCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[channel]
}

func (f *fakeChannels) deliveries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func TestGatewayRoutesOnlineAndQueuesOffline(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	hub := &fakeChannels{online: map[string]int{"bob": 1}}
	gw := NewGateway(hub, cache.NewInboxCache(client, 10, time.Hour), zerolog.Nop())

	body := &model.NotificationBody{RoomID: "r1", Text: "hi"}
	if err := gw.Deliver(ctx, &model.Notification{UserID: "bob", Message: body}); err != nil {
		t.Fatal(err)
	}
	if err := gw.Deliver(ctx, &model.Notification{UserID: "carol", Message: body}); err != nil {
		t.Fatal(err)
	}

	if d := hub.deliveries(); len(d) != 1 || d[0] != "bob" {
		t.Fatalf("expected live delivery to bob only, got %v", d)
	}

	pending, err := gw.Pending(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Message.Text != "hi" {
		t.Fatalf("expected carol's queued notification, got %+v", pending)
	}
}

func TestGatewayRejectsInvalid(t *testing.T) {
	gw := NewGateway(&fakeChannels{}, nil, zerolog.Nop())
	if err := gw.Deliver(context.Background(), &model.Notification{UserID: "bob"}); err != ErrInvalidNotification {
		t.Fatalf("expected ErrInvalidNotification, got %v", err)
	}
}

type recordingSink struct {
	mu  sync.Mutex
	got []*model.Notification
}

func (s *recordingSink) Deliver(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscriberDropsMalformedAndDelivers(t *testing.T) {
	client, mr := newTestRedis(t)
	sink := &recordingSink{}
	sub := NewSubscriber(client, DefaultChannel, sink, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx)
	}()

	waitFor(t, func() bool { return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1 })

	mr.Publish(DefaultChannel, "")
	mr.Publish(DefaultChannel, "{not json")
	mr.Publish(DefaultChannel, `{"userId":"bob","message":{"roomId":"r1","roomName":"General","sender":"alice","text":"hi"},"timestamp":"2024-01-01T00:00:00Z"}`)

	waitFor(t, func() bool { return sink.len() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop on cancel")
	}

	if sink.got[0].UserID != "bob" || sink.got[0].Message.Text != "hi" {
		t.Fatalf("unexpected record: %+v", sink.got[0])
	}
}

func TestSubscriberRetriesUntilBrokerIsUp(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatal(err)
	}
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	sink := &recordingSink{}
	sub := NewSubscriber(client, DefaultChannel, sink, zerolog.Nop())
	sub.minBackoff = 10 * time.Millisecond
	sub.maxBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := mr.Restart(); err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	waitFor(t, func() bool { return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1 })
	mr.Publish(DefaultChannel, `{"userId":"bob","message":{"roomId":"r1","text":"hi"}}`)
	waitFor(t, func() bool { return sink.len() == 1 })
}
