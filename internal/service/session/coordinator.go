// Package session owns the lifecycle of transcription sessions: at most one
// runs at a time, stop requests are idempotent and every run ends back in
// Idle.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability/logging"
	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/engine"
)

// State is the coordinator's session state.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Active reports whether a session occupies the coordinator.
func (s State) Active() bool {
	return s == Starting || s == Running || s == Stopping
}

// Session is a snapshot of one session.
type Session struct {
	ID        string
	Mode      engine.Mode
	Device    audio.Device
	State     State
	StartedAt time.Time
	EndedAt   time.Time
	Err       string
}

// AdapterFactory creates the adapter for a session.
type AdapterFactory interface {
	Create(mode engine.Mode, sessionID string) (engine.Adapter, error)
}

// HistoryClearer truncates the transcript history.
type HistoryClearer interface {
	Clear()
}

// Coordinator runs one session at a time.
type Coordinator struct {
	factory AdapterFactory
	bus     *events.Bus
	history HistoryClearer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	newID   func() string

	mu          sync.Mutex
	state       State
	active      *Session
	adapter     engine.Adapter
	stopPending bool
	last        *Session
}

// NewCoordinator creates an idle coordinator. history may be nil.
func NewCoordinator(factory AdapterFactory, bus *events.Bus, history HistoryClearer, logger zerolog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		factory: factory,
		bus:     bus,
		history: history,
		logger:  logging.WithComponent(logger, "coordinator"),
		metrics: m,
		newID:   func() string { return uuid.NewString() },
	}
}

// StartSession runs a session in mode on dev and blocks until it ends. It
// returns nil when the session was stopped or the engine ended the stream.
func (c *Coordinator) StartSession(ctx context.Context, mode engine.Mode, dev audio.Device) error {
	if !dev.Configured() {
		err := engine.NewError(engine.DeviceNotConfigured, "no audio device selected", nil)
		c.reject(err)
		return err
	}

	c.mu.Lock()
	if c.state.Active() {
		running := c.active.ID
		c.mu.Unlock()
		err := engine.NewError(engine.AlreadyRunning, "session "+running+" is already running", nil)
		c.reject(err)
		return err
	}
	sess := &Session{ID: c.newID(), Mode: mode, Device: dev, StartedAt: time.Now()}
	c.active = sess
	c.stopPending = false
	c.setStateLocked(Starting)
	c.mu.Unlock()

	defer c.finish()

	logger := logging.WithSession(c.logger, sess.ID, mode.String())

	if c.history != nil {
		c.history.Clear()
	}

	adapter, err := c.factory.Create(mode, sess.ID)
	if err != nil {
		c.mu.Lock()
		sess.Err = engine.ReasonOf(err)
		c.setStateLocked(Failed)
		c.mu.Unlock()
		c.reject(err)
		return err
	}

	c.mu.Lock()
	c.adapter = adapter
	pending := c.stopPending
	if pending {
		c.setStateLocked(Stopping)
	} else {
		c.setStateLocked(Running)
	}
	c.mu.Unlock()

	if pending {
		logger.Info().Msg("Applying stop requested during start")
		adapter.Stop()
	}

	c.metrics.RecordSessionStart(mode.String())
	c.bus.PublishStarted(sess.ID, mode.String())
	logger.Info().Str("device", dev.String()).Msg("Session started")

	err = adapter.Run(ctx, dev)

	final := Completed
	kind := ""
	if err != nil {
		final = Failed
		kind = engine.KindOf(err).String()
	}
	c.mu.Lock()
	sess.EndedAt = time.Now()
	if err != nil {
		sess.Err = engine.ReasonOf(err)
	}
	c.setStateLocked(final)
	c.mu.Unlock()

	c.metrics.RecordSessionEnd(kind, sess.EndedAt.Sub(sess.StartedAt).Seconds())
	c.bus.PublishCompleted(sess.ID, mode.String(), err)

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err).Str("kind", kind)
	}
	event.Dur("duration", sess.EndedAt.Sub(sess.StartedAt)).Msg("Session ended")
	return err
}

// finish returns the coordinator to Idle.
func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		snap := *c.active
		c.last = &snap
	}
	c.active = nil
	c.adapter = nil
	c.stopPending = false
	c.setStateLocked(Idle)
}

func (c *Coordinator) reject(err error) {
	c.metrics.RecordSessionRejected(engine.KindOf(err).String())
	c.logger.Warn().Err(err).Msg("Session start rejected")
}

// StopSession requests the active session to stop and returns immediately.
// A stop during Starting is applied once the adapter exists. Calling it
// when idle, or more than once, is a no-op.
func (c *Coordinator) StopSession() {
	c.mu.Lock()
	var adapter engine.Adapter
	switch c.state {
	case Starting:
		if !c.stopPending {
			c.stopPending = true
			c.logger.Info().Str("sessionId", c.active.ID).Msg("Stop requested while starting")
		}
	case Running:
		adapter = c.adapter
		c.setStateLocked(Stopping)
	}
	c.mu.Unlock()

	if adapter != nil {
		c.logger.Info().Msg("Stopping session")
		adapter.Stop()
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveSession returns a snapshot of the running session, if any.
func (c *Coordinator) ActiveSession() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Session{}, false
	}
	return *c.active, true
}

// LastSession returns a snapshot of the most recently finished session.
func (c *Coordinator) LastSession() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Session{}, false
	}
	return *c.last, true
}

// setStateLocked must be called with c.mu held.
func (c *Coordinator) setStateLocked(s State) {
	c.state = s
	if c.active != nil {
		c.active.State = s
	}
}
