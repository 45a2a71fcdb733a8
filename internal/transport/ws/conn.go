package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"medchat/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the HTTP layer
	},
}

// Connection is one live WebSocket client
type Connection struct {
	ID   string
	Send chan []byte
}

// NewConnection allocates a connection with its outbound buffer
func NewConnection() *Connection {
	return &Connection{
		ID:   uuid.NewString(),
		Send: make(chan []byte, sendBuffer),
	}
}

// ClientEvent is what clients send: {"type": "...", "payload": {...}}
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// pump runs the read and write loops for a registered connection.
// onEvent is called on the read goroutine for every well-formed event.
type pump struct {
	hub     *Hub
	conn    *Connection
	ws      *websocket.Conn
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func (p *pump) start(onEvent func(ev ClientEvent)) {
	go p.writePump()
	go p.readPump(onEvent)
}

func (p *pump) readPump(onEvent func(ev ClientEvent)) {
	defer func() {
		p.hub.Unregister(p.conn)
		p.ws.Close()
	}()

	p.ws.SetReadLimit(maxMessageSize)
	p.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.ws.SetPongHandler(func(string) error {
		p.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				p.logger.Warn().Err(err).Str("conn_id", p.conn.ID).Msg("websocket read error")
			}
			return
		}

		if p.limiter != nil && !p.limiter.Allow() {
			p.hub.SendTo(p.conn, service.EventError, errorPayload{Message: "rate limit exceeded"})
			continue
		}

		var ev ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			p.hub.SendTo(p.conn, service.EventError, errorPayload{Message: "malformed event"})
			continue
		}
		onEvent(ev)
	}
}

func (p *pump) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.ws.Close()
	}()

	for {
		select {
		case message, ok := <-p.conn.Send:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := p.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
