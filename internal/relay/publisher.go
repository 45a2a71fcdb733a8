package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medchat/internal/metrics"
	"medchat/internal/model"
)

const (
	// DefaultChannel is the broker channel shared by producer and consumer
	DefaultChannel = "notifications"

	defaultRoomName = "Chat room"
	publishTimeout  = 5 * time.Second
)

// Publisher is the producer side of the relay. It implements service.Notifier.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher creates a producer publishing on channel
func NewPublisher(client *redis.Client, channel string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "relay.publisher").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Notify publishes one record per room member other than the author.
// It returns immediately; publishing happens in the background so a broker
// outage never holds up the send that triggered it.
func (p *Publisher) Notify(ctx context.Context, room *model.Room, msg *model.Message) {
	records := p.records(room, msg)
	if len(records) == 0 {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn().Str("room_id", room.ID).Msg("publisher closed, notification skipped")
		metrics.NotificationsFailed.Add(float64(len(records)))
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		p.publishAll(pubCtx, records)
	}()
}

// Close waits for in-flight publishes. Notify calls after Close are skipped.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) records(room *model.Room, msg *model.Message) []*model.Notification {
	roomName := room.RoomName
	if roomName == "" {
		roomName = defaultRoomName
	}
	body := &model.NotificationBody{
		RoomID:   room.ID,
		RoomName: roomName,
		Sender:   msg.Username,
		Text:     msg.Text,
	}

	var out []*model.Notification
	for _, member := range room.Members {
		if member == msg.Username {
			continue
		}
		out = append(out, &model.Notification{
			UserID:    member,
			Message:   body,
			Timestamp: p.now(),
		})
	}
	return out
}

// publishAll attempts every recipient independently
func (p *Publisher) publishAll(ctx context.Context, records []*model.Notification) {
	for _, n := range records {
		data, err := json.Marshal(n)
		if err != nil {
			p.logger.Error().Err(err).Str("user_id", n.UserID).Msg("failed to encode notification")
			metrics.NotificationsFailed.Inc()
			continue
		}
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			p.logger.Warn().Err(err).
				Str("user_id", n.UserID).
				Str("room_id", n.Message.RoomID).
				Msg("failed to publish notification")
			metrics.NotificationsFailed.Inc()
			continue
		}
		metrics.NotificationsPublished.Inc()
	}
}
