package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"medchat/internal/metrics"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maps channels (room ids and usernames) to live connections.
// All mutations run on the hub goroutine; the mutex only lets readers such as
// SubscriberCount observe the tables from other goroutines.
type Hub struct {
	name string

	// connection -> channels it is in, channel -> connections
	conns    map[*Connection]map[string]struct{}
	channels map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register    chan *Connection
	unregister  chan *Connection
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan *BroadcastMessage

	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

type subscription struct {
	conn    *Connection
	channel string
}

// BroadcastMessage is a message to deliver. Exactly one target applies:
// Conn (a single connection), All, or Channel.
type BroadcastMessage struct {
	Channel string
	All     bool
	Conn    *Connection
	Data    []byte
}

// NewHub creates and starts a hub. name labels its metrics and logs.
func NewHub(name string, logger zerolog.Logger) *Hub {
	h := &Hub{
		name:        name,
		conns:       make(map[*Connection]map[string]struct{}),
		channels:    make(map[string]map[*Connection]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan *BroadcastMessage, 256),
		done:        make(chan struct{}),
		logger:      logger.With().Str("hub", name).Logger(),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if _, ok := h.conns[conn]; !ok {
				h.conns[conn] = make(map[string]struct{})
				metrics.WSConnections.WithLabelValues(h.name).Inc()
			}
			h.mu.Unlock()
			h.logger.Debug().Str("conn_id", conn.ID).Msg("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.conns[conn]; ok {
				for channel := range subs {
					h.removeLocked(conn, channel)
				}
				delete(h.conns, conn)
				close(conn.Send)
				metrics.WSConnections.WithLabelValues(h.name).Dec()
				h.logger.Debug().Str("conn_id", conn.ID).Msg("connection unregistered")
			}
			h.mu.Unlock()

		case sub := <-h.subscribe:
			h.mu.Lock()
			if subs, ok := h.conns[sub.conn]; ok {
				subs[sub.channel] = struct{}{}
				if h.channels[sub.channel] == nil {
					h.channels[sub.channel] = make(map[*Connection]struct{})
				}
				h.channels[sub.channel][sub.conn] = struct{}{}
			}
			h.mu.Unlock()

		case sub := <-h.unsubscribe:
			h.mu.Lock()
			if subs, ok := h.conns[sub.conn]; ok {
				delete(subs, sub.channel)
				h.removeLocked(sub.conn, sub.channel)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			switch {
			case msg.Conn != nil:
				if _, ok := h.conns[msg.Conn]; ok {
					h.deliver(msg.Conn, msg.Data)
				}
			case msg.All:
				for conn := range h.conns {
					h.deliver(conn, msg.Data)
				}
			default:
				// no subscribers is not an error
				for conn := range h.channels[msg.Channel] {
					h.deliver(conn, msg.Data)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection from every channel and closes its send buffer
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Subscribe puts a registered connection into channel
func (h *Hub) Subscribe(conn *Connection, channel string) {
	select {
	case h.subscribe <- subscription{conn: conn, channel: channel}:
	case <-h.done:
	}
}

// Unsubscribe takes a connection out of channel
func (h *Hub) Unsubscribe(conn *Connection, channel string) {
	select {
	case h.unsubscribe <- subscription{conn: conn, channel: channel}:
	case <-h.done:
	}
}

// Publish sends an event to every connection in channel (implements service.Broadcaster)
func (h *Hub) Publish(channel string, event string, payload interface{}) {
	h.enqueue(&BroadcastMessage{Channel: channel}, event, payload)
}

// BroadcastAll sends an event to every connection (implements service.Broadcaster)
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	h.enqueue(&BroadcastMessage{All: true}, event, payload)
}

// SendTo sends an event to a single connection
func (h *Hub) SendTo(conn *Connection, event string, payload interface{}) {
	h.enqueue(&BroadcastMessage{Conn: conn}, event, payload)
}

// SubscriberCount returns how many connections are in channel right now
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Stop ends the hub goroutine and closes every connection's send buffer
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) enqueue(msg *BroadcastMessage, event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	msg.Data = data
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
		metrics.WSEventsDropped.WithLabelValues(h.name).Inc()
	}
}

func (h *Hub) removeLocked(conn *Connection, channel string) {
	if members, ok := h.channels[channel]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		close(conn.Send)
		metrics.WSConnections.WithLabelValues(h.name).Dec()
	}
	h.conns = make(map[*Connection]map[string]struct{})
	h.channels = make(map[string]map[*Connection]struct{})
}

func encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: event, Payload: data})
}
