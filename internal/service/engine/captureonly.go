package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/segment"
)

// CaptureOnlyAdapter records audio without a recognition engine and reports
// capture progress as interim segments.
type CaptureOnlyAdapter struct {
	base

	tracker *segment.Tracker

	captured atomic.Int64
	voiced   atomic.Int64

	lastProgress time.Time // touched only by the Run goroutine
	vadFailOnce  sync.Once
}

// NewCaptureOnlyAdapter creates a CaptureOnly adapter for one session.
func NewCaptureOnlyAdapter(sessionID string, deps Deps) *CaptureOnlyAdapter {
	return &CaptureOnlyAdapter{
		base:    newBase(CaptureOnly, sessionID, deps.withDefaults()),
		tracker: segment.NewTracker(sessionID),
	}
}

// CapturedBytes returns the number of bytes captured so far.
func (a *CaptureOnlyAdapter) CapturedBytes() int64 { return a.captured.Load() }

func (a *CaptureOnlyAdapter) Run(ctx context.Context, dev audio.Device) error {
	defer a.setState(Stopped)
	defer a.tracker.Close()

	if a.stopRequested() {
		return nil
	}

	src, err := a.openSource(dev)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Session validation failed")
		return err
	}
	if err := src.Start(ctx, a.onChunk); err != nil {
		_ = src.Close()
		return NewError(DeviceNotConfigured, "could not start audio capture", err)
	}

	a.setState(Streaming)
	a.lastProgress = time.Now()
	a.logger.Info().Str("device", dev.String()).Msg("Capture started")

	reason := a.wait(ctx, nil, a.tick)

	a.setState(Stopping)
	a.closeSource(src)

	a.logger.Info().
		Int64("bytes", a.captured.Load()).
		Msg("Capture ended")

	if reason == exitCancelled {
		return cancelledError(ctx)
	}
	return nil
}

func (a *CaptureOnlyAdapter) onChunk(chunk []byte) {
	a.captured.Add(int64(len(chunk)))
	a.deps.Metrics.RecordAudioCaptured(len(chunk))

	if a.deps.Detector == nil {
		return
	}
	n, err := a.deps.Detector.VoicedBytes(chunk)
	if err != nil {
		a.vadFailOnce.Do(func() {
			a.logger.Warn().Err(err).Msg("Voice activity detection failed")
		})
	}
	a.voiced.Add(int64(n))
}

func (a *CaptureOnlyAdapter) tick(now time.Time) {
	if now.Sub(a.lastProgress) < a.deps.ProgressInterval {
		return
	}
	a.lastProgress = now
	a.emitProgress(now)
}

func (a *CaptureOnlyAdapter) emitProgress(now time.Time) {
	id, err := a.tracker.Interim()
	if err != nil {
		return
	}
	seg := segment.Segment{
		SessionID:   a.sessionID,
		UtteranceID: id,
		Text:        progressText(a.captured.Load(), a.voiced.Load(), a.deps.Detector != nil),
		Timestamp:   now,
	}
	a.deps.Metrics.RecordSegment(false)
	a.deps.Bus.PublishSegment(a.mode.String(), seg)
}

// progressText renders "Captured N bytes (X.Xs of audio, Y% voiced)".
func progressText(captured, voiced int64, withVAD bool) string {
	secs := float64(captured) / float64(audio.BytesPerSecond)
	if !withVAD {
		return fmt.Sprintf("Captured %d bytes (%.1fs of audio)", captured, secs)
	}
	pct := 0
	if captured > 0 {
		pct = int(voiced * 100 / captured)
	}
	return fmt.Sprintf("Captured %d bytes (%.1fs of audio, %d%% voiced)", captured, secs, pct)
}
