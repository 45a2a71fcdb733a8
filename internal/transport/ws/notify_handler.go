package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"medchat/internal/model"
	"medchat/internal/service"
)

// PendingSource hands back notifications queued while a user was offline
type PendingSource interface {
	Pending(ctx context.Context, userID string) ([]*model.Notification, error)
}

// NotifyHandler serves the notification gateway's realtime endpoint.
// Clients only listen here; the one event they send is "join".
type NotifyHandler struct {
	hub     *Hub
	pending PendingSource
	logger  zerolog.Logger
}

func NewNotifyHandler(hub *Hub, pending PendingSource, logger zerolog.Logger) *NotifyHandler {
	return &NotifyHandler{
		hub:     hub,
		pending: pending,
		logger:  logger.With().Str("component", "ws.notify").Logger(),
	}
}

type notifyJoinPayload struct {
	UserID string `json:"userId"`
}

// ServeWS handles GET /ws?userId=
func (h *NotifyHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection()
	h.hub.Register(conn)
	if userID := r.URL.Query().Get("userId"); userID != "" {
		h.attach(conn, userID)
	}

	p := &pump{hub: h.hub, conn: conn, ws: wsConn, logger: h.logger}
	p.start(func(ev ClientEvent) {
		if ev.Type != "join" {
			h.hub.SendTo(conn, service.EventError, errorPayload{Event: ev.Type, Message: "unknown event"})
			return
		}
		var jp notifyJoinPayload
		if err := json.Unmarshal(ev.Payload, &jp); err != nil || jp.UserID == "" {
			h.hub.SendTo(conn, service.EventError, errorPayload{Event: ev.Type, Message: "userId is required"})
			return
		}
		h.attach(conn, jp.UserID)
	})
}

// attach subscribes the connection to the user's channel and replays the inbox
func (h *NotifyHandler) attach(conn *Connection, userID string) {
	h.hub.Subscribe(conn, userID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queued, err := h.pending.Pending(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read pending notifications")
		return
	}
	for _, n := range queued {
		h.hub.SendTo(conn, service.EventNewNotification, n)
	}
}
