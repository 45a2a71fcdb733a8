package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medchat/internal/metrics"
	"medchat/internal/model"
)

// Sink receives validated notification records
type Sink interface {
	Deliver(ctx context.Context, n *model.Notification) error
}

// Subscriber is the consumer side of the relay
type Subscriber struct {
	client     *redis.Client
	channel    string
	sink       Sink
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSubscriber creates a consumer of channel feeding sink
func NewSubscriber(client *redis.Client, channel string, sink Sink, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		client:     client,
		channel:    channel,
		sink:       sink,
		logger:     logger.With().Str("component", "relay.subscriber").Logger(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run subscribes and consumes until ctx is cancelled. While the broker is
// unreachable it keeps retrying with capped exponential backoff.
func (s *Subscriber) Run(ctx context.Context) {
	backoff := s.minBackoff
	for {
		pubsub := s.client.Subscribe(ctx, s.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("broker subscribe failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		backoff = s.minBackoff
		s.logger.Info().Str("channel", s.channel).Msg("subscribed to notifications")
		s.consume(ctx, pubsub)
		pubsub.Close()
		if ctx.Err() != nil {
			return
		}
	}
}

// consume reads until ctx ends or the pubsub channel closes. go-redis
// reconnects the underlying connection on its own while the channel is open.
func (s *Subscriber) consume(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	if payload == "" {
		s.logger.Warn().Msg("empty notification dropped")
		metrics.RelayRecords.WithLabelValues("dropped").Inc()
		return
	}

	var n model.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Warn().Err(err).Msg("malformed notification dropped")
		metrics.RelayRecords.WithLabelValues("dropped").Inc()
		return
	}

	if err := s.sink.Deliver(ctx, &n); err != nil {
		s.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("notification not delivered")
	}
}
