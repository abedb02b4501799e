package history

import (
	"sync"

	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability/metrics"
)

// Recorder appends final segments from the bus to a Store. Store failures
// are logged and counted; they never reach the session.
type Recorder struct {
	mu      sync.Mutex
	store   Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(store Store, logger zerolog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.With().Str("component", "history").Logger(),
		metrics: m,
	}
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(r.Handle)
}

// Handle records final, non-blank segments and ignores everything else.
func (r *Recorder) Handle(ev events.Event) {
	if ev.Kind != events.SegmentReceived || !ev.Segment.IsFinal || ev.Segment.IsBlank() {
		return
	}
	seg := ev.Segment
	entry := Entry{
		SessionID: seg.SessionID,
		Speaker:   seg.Speaker,
		Text:      seg.Text,
		Timestamp: seg.Timestamp,
	}

	r.mu.Lock()
	err := r.store.Append(entry)
	r.mu.Unlock()

	r.metrics.RecordHistoryWrite("append", err)
	if err != nil {
		r.logger.Error().Err(err).
			Str("sessionId", seg.SessionID).
			Str("utteranceId", seg.UtteranceID).
			Msg("Failed to append history entry")
	}
}

// Clear truncates the history.
func (r *Recorder) Clear() {
	r.mu.Lock()
	err := r.store.Clear()
	r.mu.Unlock()

	r.metrics.RecordHistoryWrite("clear", err)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to clear history")
		return
	}
	r.logger.Debug().Msg("History cleared")
}

// Entries returns the recorded history.
func (r *Recorder) Entries() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Entries()
}
