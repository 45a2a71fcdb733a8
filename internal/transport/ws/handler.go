package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"medchat/internal/service"
)

// Handler serves the chat service's realtime endpoint
type Handler struct {
	hub     *Hub
	chatSvc *service.ChatService
	limit   rate.Limit
	burst   int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewHandler creates a new WebSocket handler. eventsPerSecond and burst bound
// how fast a single connection may send events.
func NewHandler(hub *Hub, chatSvc *service.ChatService, eventsPerSecond float64, burst int, timeout time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		chatSvc: chatSvc,
		limit:   rate.Limit(eventsPerSecond),
		burst:   burst,
		timeout: timeout,
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

type joinPayload struct {
	Username string `json:"username"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID      string `json:"roomId"`
	Sender      string `json:"sender"`
	Username    string `json:"username"`
	Text        string `json:"text"`
	ClientMsgID string `json:"clientMsgId"`
}

// ServeWS handles GET /ws. An optional ?username= subscribes the connection
// to its personal channel right away, same as a "join" event.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection()
	h.hub.Register(conn)
	if username := r.URL.Query().Get("username"); username != "" {
		h.hub.Subscribe(conn, username)
	}

	h.logger.Info().Str("conn_id", conn.ID).Str("remote_addr", r.RemoteAddr).Msg("client connected")

	p := &pump{
		hub:     h.hub,
		conn:    conn,
		ws:      wsConn,
		limiter: rate.NewLimiter(h.limit, h.burst),
		logger:  h.logger,
	}
	p.start(func(ev ClientEvent) { h.handleEvent(conn, ev) })
}

func (h *Handler) handleEvent(conn *Connection, ev ClientEvent) {
	switch ev.Type {
	case "join":
		var p joinPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Username == "" {
			h.reject(conn, ev.Type, "username is required")
			return
		}
		h.hub.Subscribe(conn, p.Username)

	case "joinRoom":
		var p roomPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.RoomID == "" {
			h.reject(conn, ev.Type, "roomId is required")
			return
		}
		h.hub.Subscribe(conn, p.RoomID)

	case "leaveRoom":
		var p roomPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.RoomID == "" {
			h.reject(conn, ev.Type, "roomId is required")
			return
		}
		h.hub.Unsubscribe(conn, p.RoomID)

	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			h.reject(conn, ev.Type, "invalid payload")
			return
		}
		h.sendMessage(conn, p)

	default:
		h.reject(conn, ev.Type, "unknown event")
	}
}

// sendMessage takes the same path as POST /messages; the sender sees its own
// message through the room channel like everyone else.
func (h *Handler) sendMessage(conn *Connection, p sendMessagePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err := h.chatSvc.SendMessage(ctx, service.SendMessageInput{
		RoomID:      p.RoomID,
		Sender:      p.Sender,
		Username:    p.Username,
		Text:        p.Text,
		ClientMsgID: p.ClientMsgID,
	}, "realtime")
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrNotMember),
		errors.Is(err, service.ErrInvalidInput):
		h.reject(conn, "sendMessage", err.Error())
	default:
		h.logger.Error().Err(err).Str("room_id", p.RoomID).Msg("realtime send failed")
		h.reject(conn, "sendMessage", "message could not be delivered")
	}
}

func (h *Handler) reject(conn *Connection, event, message string) {
	h.hub.SendTo(conn, service.EventError, errorPayload{Event: event, Message: message})
}
