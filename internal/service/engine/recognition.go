package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/auth"
	"ai-speech-session-service/internal/service/segment"
	"ai-speech-session-service/internal/service/speaker"
	"ai-speech-session-service/internal/service/stt"
)

// recognition is the session loop shared by the Plain and Diarized adapters.
type recognition struct {
	base

	// resolver is nil for Plain sessions.
	resolver *speaker.Resolver
	tracker  *segment.Tracker

	terminated chan struct{}
	termOnce   sync.Once
	termErr    error // guarded by base.mu
}

func newRecognition(mode Mode, sessionID string, deps Deps, resolver *speaker.Resolver) *recognition {
	return &recognition{
		base:       newBase(mode, sessionID, deps),
		resolver:   resolver,
		tracker:    segment.NewTracker(sessionID),
		terminated: make(chan struct{}),
	}
}

func (r *recognition) Run(ctx context.Context, dev audio.Device) error {
	start := time.Now()
	r.setState(AuthValidating)
	defer r.setState(Stopped)
	defer r.tracker.Close()

	if err := r.validateCredentials(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Session validation failed")
		return err
	}
	if r.stopRequested() {
		return nil
	}

	src, err := r.openSource(dev)
	if err != nil {
		return err
	}

	rec, err := r.deps.Recognizers(ctx, stt.Options{SessionID: r.sessionID, Diarization: r.resolver != nil})
	if err != nil {
		_ = src.Close()
		return startError(err, "could not create recognizer")
	}

	if err := rec.Start(ctx, callback{r}); err != nil {
		_ = rec.Stop()
		_ = src.Close()
		return startError(err, "could not start recognition")
	}

	if err := src.Start(ctx, r.forward(ctx, rec)); err != nil {
		_ = rec.Stop()
		_ = src.Close()
		return NewError(DeviceNotConfigured, "could not start audio capture", err)
	}

	r.setState(Streaming)
	r.logger.Info().Str("device", dev.String()).Msg("Streaming started")

	reason := r.wait(ctx, r.terminated, nil)

	r.setState(Stopping)
	// recognition first so a pending final is still delivered
	if err := rec.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop recognizer")
	}
	r.closeSource(src)

	err = r.outcome(ctx, reason)
	r.logger.Info().
		Err(err).
		Int("utterances", r.tracker.Utterances()).
		Dur("duration", time.Since(start)).
		Msg("Streaming ended")
	return err
}

func (r *recognition) outcome(ctx context.Context, reason exitReason) error {
	switch reason {
	case exitCancelled:
		return cancelledError(ctx)
	case exitEngineEnded:
		r.mu.Lock()
		err := r.termErr
		r.mu.Unlock()
		if err != nil {
			return NewError(EngineError, err.Error(), err)
		}
	}
	return nil
}

// startError classifies a failure to reach the engine. gRPC rejections of
// the credentials are authentication failures.
func startError(err error, reason string) error {
	if pe := auth.FromGRPC(err); pe != nil && !pe.Transport() {
		if pe.StatusCode == 401 || pe.StatusCode == 403 {
			return NewError(AuthenticationFailed, pe.Reason(), err)
		}
	}
	return NewError(ConnectionFailed, reason, err)
}

// forward sends captured chunks to the recognizer. A rejected chunk is
// logged and the session carries on.
func (r *recognition) forward(ctx context.Context, rec stt.Recognizer) func([]byte) {
	return func(chunk []byte) {
		r.deps.Metrics.RecordAudioCaptured(len(chunk))
		if err := rec.SendAudio(ctx, chunk); err != nil {
			r.deps.Metrics.RecordAudioSendError()
			r.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("Failed to send audio chunk")
		}
	}
}

func (r *recognition) emit(text, rawSpeaker string, final bool) {
	if strings.TrimSpace(text) == "" {
		if final {
			// the engine closed the utterance even though nothing was said
			_, _ = r.tracker.Final()
			r.deps.Metrics.RecordSegmentSuppressed("blank_final")
		} else {
			r.deps.Metrics.RecordSegmentSuppressed("blank_interim")
		}
		return
	}

	var (
		id  string
		err error
	)
	if final {
		id, err = r.tracker.Final()
	} else {
		id, err = r.tracker.Interim()
	}
	if err != nil {
		r.deps.Metrics.RecordSegmentSuppressed("after_end")
		r.logger.Debug().Err(err).Bool("final", final).Msg("Result after session end ignored")
		return
	}

	seg := segment.Segment{
		SessionID:   r.sessionID,
		UtteranceID: id,
		Text:        text,
		IsFinal:     final,
		Timestamp:   time.Now(),
		IsDiarized:  r.resolver != nil,
	}
	if r.resolver != nil {
		seg.Speaker = r.resolver.Resolve(rawSpeaker)
	}

	r.deps.Metrics.RecordSegment(final)
	if final {
		r.logger.Debug().Str("utteranceId", id).Str("speaker", seg.Speaker).Msg("Final segment")
	}
	r.deps.Bus.PublishSegment(r.mode.String(), seg)
}

// terminate records how the engine ended the stream. Only the first call
// counts.
func (r *recognition) terminate(err error) {
	r.termOnce.Do(func() {
		if err != nil && r.State() >= Stopping {
			// teardown errors from a stream we are closing ourselves
			r.logger.Debug().Err(err).Msg("Recognizer error during shutdown")
			err = nil
		}
		if err != nil {
			r.tracker.Drop()
			r.deps.Metrics.RecordEngineError(EngineError.String())
			r.logger.Error().Err(err).Msg("Recognition cancelled by engine")
			r.deps.Bus.PublishError(r.sessionID, r.mode.String(), NewError(EngineError, err.Error(), err))
		} else {
			r.logger.Info().Msg("Engine ended the stream")
		}
		r.mu.Lock()
		r.termErr = err
		r.mu.Unlock()
		close(r.terminated)
	})
}

// callback adapts recognition to stt.Callback without exporting the
// callback methods on the adapters.
type callback struct{ r *recognition }

func (c callback) OnInterim(text, speakerID string) { c.r.emit(text, speakerID, false) }
func (c callback) OnFinal(text, speakerID string)   { c.r.emit(text, speakerID, true) }
func (c callback) OnCancelled(err error)            { c.r.terminate(err) }

// PlainAdapter transcribes without speaker attribution.
type PlainAdapter struct {
	*recognition
}

// NewPlainAdapter creates a Plain adapter for one session.
func NewPlainAdapter(sessionID string, deps Deps) *PlainAdapter {
	return &PlainAdapter{newRecognition(Plain, sessionID, deps.withDefaults(), nil)}
}

// DiarizedAdapter transcribes and labels each segment with a stable
// "Speaker N" name.
type DiarizedAdapter struct {
	*recognition
}

// NewDiarizedAdapter creates a Diarized adapter with a fresh speaker map.
func NewDiarizedAdapter(sessionID string, deps Deps) *DiarizedAdapter {
	deps = deps.withDefaults()
	resolver := speaker.NewResolver()
	a := &DiarizedAdapter{newRecognition(Diarized, sessionID, deps, resolver)}
	resolver.OnNew = func(rawID, label string) {
		deps.Metrics.RecordSpeakerResolved()
		a.logger.Info().Str("rawSpeakerId", rawID).Str("label", label).Msg("New speaker")
	}
	return a
}

// Speakers returns the labels assigned so far.
func (a *DiarizedAdapter) Speakers() []speaker.Assignment {
	return a.resolver.Labels()
}
