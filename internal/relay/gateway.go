package relay

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"medchat/internal/cache"
	"medchat/internal/metrics"
	"medchat/internal/model"
	"medchat/internal/service"
)

var ErrInvalidNotification = errors.New("notification requires userId and message")

// Channels is the part of the notifier hub the gateway needs
type Channels interface {
	Publish(channel string, event string, payload interface{})
	SubscriberCount(channel string) int
}

// Gateway re-emits notifications on the recipient's personal channel.
// Records for recipients without a live connection go to the inbox.
type Gateway struct {
	hub    Channels
	inbox  cache.InboxCache
	logger zerolog.Logger
}

// NewGateway creates the delivery sink. inbox may be nil, in which case
// records for offline users are dropped.
func NewGateway(hub Channels, inbox cache.InboxCache, logger zerolog.Logger) *Gateway {
	return &Gateway{
		hub:    hub,
		inbox:  inbox,
		logger: logger.With().Str("component", "relay.gateway").Logger(),
	}
}

func (g *Gateway) Deliver(ctx context.Context, n *model.Notification) error {
	if !n.Valid() {
		metrics.RelayRecords.WithLabelValues("dropped").Inc()
		return ErrInvalidNotification
	}

	if g.hub.SubscriberCount(n.UserID) > 0 {
		g.hub.Publish(n.UserID, service.EventNewNotification, n)
		metrics.RelayRecords.WithLabelValues("delivered").Inc()
		return nil
	}

	if g.inbox == nil {
		metrics.RelayRecords.WithLabelValues("dropped").Inc()
		return nil
	}
	if err := g.inbox.Push(ctx, n); err != nil {
		metrics.RelayRecords.WithLabelValues("dropped").Inc()
		return err
	}
	metrics.RelayRecords.WithLabelValues("queued").Inc()
	g.logger.Debug().Str("user_id", n.UserID).Msg("recipient offline, notification queued")
	return nil
}

// Pending drains the inbox for userID
func (g *Gateway) Pending(ctx context.Context, userID string) ([]*model.Notification, error) {
	if g.inbox == nil {
		return []*model.Notification{}, nil
	}
	return g.inbox.Drain(ctx, userID)
}
