// Package events provides the in-process event bus that decouples the
// transcription engines from their consumers, and sinks that forward bus
// events to external systems.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/service/segment"
)

// Kind identifies an event type.
type Kind int

const (
	SegmentReceived Kind = iota
	ErrorOccurred
	SessionStarted
	SessionCompleted
)

func (k Kind) String() string {
	switch k {
	case SegmentReceived:
		return "SegmentReceived"
	case ErrorOccurred:
		return "ErrorOccurred"
	case SessionStarted:
		return "SessionStarted"
	case SessionCompleted:
		return "SessionCompleted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is delivered to subscribers by value.
type Event struct {
	Kind      Kind
	SessionID string
	Mode      string
	Segment   segment.Segment // SegmentReceived only
	Err       error           // ErrorOccurred, and SessionCompleted on failure
	Time      time.Time
}

// Handler receives events. It runs on the emitter's goroutine and should
// return quickly.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously to every subscriber in registration
// order. There is no buffering or replay: a subscriber sees only events
// published while it is subscribed. A panicking handler is recovered and
// does not affect delivery to the others.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	nextID  uint64
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		logger:  logger.With().Str("component", "event-bus").Logger(),
		metrics: m,
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// copy so in-flight Publish calls keep their snapshot intact
			subs := make([]subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to all current subscribers.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandlerPanic(ev.Kind.String())
			b.logger.Error().
				Interface("panic", r).
				Uint64("subscriber", s.id).
				Str("event", ev.Kind.String()).
				Str("sessionId", ev.SessionID).
				Msg("Event handler panicked")
		}
	}()
	s.handler(ev)
}

// PublishSegment publishes a SegmentReceived event.
func (b *Bus) PublishSegment(mode string, seg segment.Segment) {
	b.Publish(Event{
		Kind:      SegmentReceived,
		SessionID: seg.SessionID,
		Mode:      mode,
		Segment:   seg,
		Time:      seg.Timestamp,
	})
}

// PublishError publishes an ErrorOccurred event.
func (b *Bus) PublishError(sessionID, mode string, err error) {
	b.Publish(Event{Kind: ErrorOccurred, SessionID: sessionID, Mode: mode, Err: err})
}

// PublishStarted publishes a SessionStarted event.
func (b *Bus) PublishStarted(sessionID, mode string) {
	b.Publish(Event{Kind: SessionStarted, SessionID: sessionID, Mode: mode})
}

// PublishCompleted publishes a SessionCompleted event; err is nil on success.
func (b *Bus) PublishCompleted(sessionID, mode string, err error) {
	b.Publish(Event{Kind: SessionCompleted, SessionID: sessionID, Mode: mode, Err: err})
}
