// Package display renders the live transcript: a WebSocket hub for browser
// viewers and a styled console writer.
package display

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
)

// Message is what viewers receive for every bus event.
type Message struct {
	Type        string `json:"type"` // segment, error, started, completed
	SessionID   string `json:"sessionId"`
	Mode        string `json:"mode,omitempty"`
	UtteranceID string `json:"utteranceId,omitempty"`
	Text        string `json:"text,omitempty"`
	Speaker     string `json:"speaker,omitempty"`
	IsFinal     bool   `json:"isFinal,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// MessageFromEvent converts a bus event to a viewer message.
func MessageFromEvent(ev events.Event) Message {
	m := Message{
		SessionID: ev.SessionID,
		Mode:      ev.Mode,
		Timestamp: ev.Time.UnixMilli(),
	}
	switch ev.Kind {
	case events.SegmentReceived:
		m.Type = "segment"
		m.UtteranceID = ev.Segment.UtteranceID
		m.Text = ev.Segment.Text
		m.Speaker = ev.Segment.Speaker
		m.IsFinal = ev.Segment.IsFinal
	case events.ErrorOccurred:
		m.Type = "error"
	case events.SessionStarted:
		m.Type = "started"
	case events.SessionCompleted:
		m.Type = "completed"
	}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

const writeTimeout = 5 * time.Second

// Hub manages WebSocket connections and fans bus events out to them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	doneOnce   sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "display-hub").Logger(),
	}
}

// Attach subscribes the hub to bus.
func (h *Hub) Attach(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(h.Handle)
}

// Handle queues an event for broadcast. It never blocks the emitter; when
// viewers fall behind the message is dropped.
func (h *Hub) Handle(ev events.Event) {
	select {
	case h.broadcast <- MessageFromEvent(ev):
	default:
		h.logger.Warn().Str("event", ev.Kind.String()).Msg("Display queue full, dropping message")
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.doneOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Viewer connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Viewer disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug().Err(err).Msg("Write error, dropping viewer")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket viewer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// read until the viewer goes away
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
