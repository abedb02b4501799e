// Package stt defines the contract between transcription engines and speech
// recognition backends.
package stt

import "context"

// Callback receives recognition results. Calls arrive on recognizer-owned
// goroutines, one at a time and in engine order.
type Callback interface {
	// OnInterim is called with provisional text for the utterance in
	// progress. Each call supersedes the previous one.
	OnInterim(text, speakerID string)

	// OnFinal is called once per utterance with the committed text.
	OnFinal(text, speakerID string)

	// OnCancelled is the terminal signal. err is nil when the engine ended
	// the stream normally and non-nil when recognition failed.
	OnCancelled(err error)
}

// Recognizer is one streaming recognition session (Google, mock, etc.).
type Recognizer interface {
	// Start opens the session; results are delivered to cb.
	Start(ctx context.Context, cb Callback) error

	// SendAudio pushes a chunk of 16-bit mono PCM.
	SendAudio(ctx context.Context, audio []byte) error

	// Stop ends the session, flushing pending results. Idempotent.
	Stop() error
}

// Options tune a recognizer for one session.
type Options struct {
	SessionID   string
	Diarization bool
}

// Factory creates a recognizer for one session.
type Factory func(ctx context.Context, opts Options) (Recognizer, error)
