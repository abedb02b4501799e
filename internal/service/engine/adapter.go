// Package engine runs transcription sessions against a recognition engine.
// An Adapter owns one session run: it validates credentials, wires the
// audio source to the recognizer, turns recognition callbacks into segments
// on the event bus and tears everything down on stop, cancellation or
// engine failure.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability/logging"
	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/auth"
	"ai-speech-session-service/internal/service/stt"
)

const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultProgressInterval = 2 * time.Second
	DefaultAuthTimeout      = 5 * time.Second
)

// Adapter runs one transcription session.
type Adapter interface {
	// Run blocks until the session ends. It returns nil when the session was
	// stopped or the engine ended the stream, and an *Error otherwise.
	Run(ctx context.Context, dev audio.Device) error
	// Stop requests a cooperative stop. Safe to call more than once and
	// from any goroutine.
	Stop()
	State() State
	Mode() Mode
}

// Deps are the collaborators shared by all adapters.
type Deps struct {
	Bus         *events.Bus
	Opener      audio.Opener
	Recognizers stt.Factory
	// Prober is optional; nil skips the authentication probe.
	Prober      auth.Prober
	Credentials auth.Credentials
	// Detector is optional; nil omits the voiced ratio from capture progress.
	Detector audio.VoiceDetector
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics

	PollInterval     time.Duration
	ProgressInterval time.Duration
	AuthTimeout      time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}
	if d.ProgressInterval <= 0 {
		d.ProgressInterval = DefaultProgressInterval
	}
	if d.AuthTimeout <= 0 {
		d.AuthTimeout = DefaultAuthTimeout
	}
	return d
}

// base holds what every adapter shares: identity, state and the stop signal.
type base struct {
	mode      Mode
	sessionID string
	deps      Deps
	logger    zerolog.Logger

	mu    sync.Mutex
	state State

	stop     chan struct{}
	stopOnce sync.Once
}

func newBase(mode Mode, sessionID string, deps Deps) base {
	return base{
		mode:      mode,
		sessionID: sessionID,
		deps:      deps,
		logger:    logging.WithSession(logging.WithComponent(deps.Logger, "engine"), sessionID, mode.String()),
		stop:      make(chan struct{}),
	}
}

func (b *base) Mode() Mode { return b.mode }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	b.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Adapter state changed")
}

func (b *base) Stop() {
	b.stopOnce.Do(func() {
		b.logger.Info().Msg("Stop requested")
		close(b.stop)
	})
}

func (b *base) stopRequested() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

type exitReason int

const (
	exitStopped exitReason = iota
	exitCancelled
	exitEngineEnded
)

// wait blocks until Stop, ctx cancellation or terminated fires. onTick, if
// set, runs every poll interval.
func (b *base) wait(ctx context.Context, terminated <-chan struct{}, onTick func(time.Time)) exitReason {
	ticker := time.NewTicker(b.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return exitStopped
		case <-ctx.Done():
			return exitCancelled
		case <-terminated:
			return exitEngineEnded
		case now := <-ticker.C:
			if onTick != nil {
				onTick(now)
			}
		}
	}
}

func cancelledError(ctx context.Context) error {
	return NewError(Cancelled, "session cancelled", ctx.Err())
}

// validateCredentials checks the key and region and runs the optional probe.
func (b *base) validateCredentials(ctx context.Context) error {
	creds := b.deps.Credentials
	if err := creds.Validate(); err != nil {
		return NewError(CredentialsMissing, "speech key or region is not set", err)
	}
	if b.deps.Prober == nil {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, b.deps.AuthTimeout)
	defer cancel()

	err := b.deps.Prober.Probe(pctx, creds)
	if err == nil {
		b.deps.Metrics.RecordAuthProbe("ok")
		b.logger.Debug().Str("region", creds.Region).Msg("Authentication probe succeeded")
		return nil
	}
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}

	// 5xx answers are outages, not verdicts on the credentials
	var pe *auth.ProbeError
	if errors.As(err, &pe) && !pe.Unavailable() {
		b.deps.Metrics.RecordAuthProbe("rejected")
		return NewError(AuthenticationFailed, pe.Reason(), err)
	}
	b.deps.Metrics.RecordAuthProbe("unreachable")
	if pe != nil {
		return NewError(ConnectionFailed, pe.Reason(), err)
	}
	return NewError(ConnectionFailed, "could not reach the speech service", err)
}

// openSource opens and validates the capture device.
func (b *base) openSource(dev audio.Device) (audio.Source, error) {
	if !dev.Configured() {
		return nil, NewError(DeviceNotConfigured, "no audio device selected", nil)
	}
	src, err := b.deps.Opener.Open(dev)
	if err != nil {
		return nil, NewError(DeviceNotConfigured, "could not open audio device "+dev.String(), err)
	}
	return src, nil
}

// closeSource stops capture then disposes of it.
func (b *base) closeSource(src audio.Source) {
	if err := src.Stop(); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to stop audio capture")
	}
	if err := src.Close(); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to close audio source")
	}
}
