// Package mock provides a scripted recognizer for running without cloud
// credentials. It simulates realistic streaming behavior: progressive
// interim transcripts, exactly one final per utterance and, in diarized
// sessions, a raw speaker id per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-speech-session-service/internal/service/stt"
)

// Utterance is a scripted utterance with progressive transcripts.
type Utterance struct {
	Partials  []string // Progressive interim transcripts
	Final     string   // Final transcript text
	SpeakerID string   // Raw engine speaker id, reported only when diarizing
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []Utterance{
	{
		Partials:  []string{"Good", "Good morning", "Good morning every"},
		Final:     "Good morning everyone",
		SpeakerID: "spk_0",
	},
	{
		Partials:  []string{"Morning", "Morning shall we"},
		Final:     "Morning, shall we start with the roadmap?",
		SpeakerID: "spk_1",
	},
	{
		Partials:  []string{"Yes", "Yes the first", "Yes the first item is"},
		Final:     "Yes, the first item is the release date",
		SpeakerID: "spk_0",
	},
	{
		Partials:  []string{"I think"},
		Final:     "I think we can ship next week",
		SpeakerID: "spk_2",
	},
}

// Config controls the simulation.
type Config struct {
	Utterances      []Utterance
	Delay           time.Duration // Simulated recognition latency per result
	ChunksPerResult int           // Audio chunks consumed per emitted result
	Loop            bool          // Restart the script instead of ending the stream
}

// DefaultConfig returns a looping script over DefaultUtterances.
func DefaultConfig() Config {
	return Config{
		Utterances:      DefaultUtterances,
		Delay:           50 * time.Millisecond,
		ChunksPerResult: 3,
		Loop:            true,
	}
}

// Factory returns an stt.Factory producing mock recognizers.
func Factory(cfg Config) stt.Factory {
	return func(ctx context.Context, opts stt.Options) (stt.Recognizer, error) {
		return New(cfg, opts), nil
	}
}

// Recognizer implements stt.Recognizer with scripted responses.
// Results are queued by SendAudio and delivered by a single dispatcher
// goroutine, so callbacks arrive strictly in script order.
type Recognizer struct {
	cfg     Config
	diarize bool

	mu           sync.Mutex
	cb           stt.Callback
	chunks       int // audio chunks since the last emitted result
	utterance    int // index into cfg.Utterances
	partialIndex int // next partial to send for the current utterance
	ended        bool
	stopped      bool

	results chan func(stt.Callback)
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a mock recognizer.
func New(cfg Config, opts stt.Options) *Recognizer {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	if cfg.ChunksPerResult <= 0 {
		cfg.ChunksPerResult = 1
	}
	return &Recognizer{
		cfg:     cfg,
		diarize: opts.Diarization,
		results: make(chan func(stt.Callback), 64),
		done:    make(chan struct{}),
	}
}

// Start begins a mock recognition session.
func (r *Recognizer) Start(ctx context.Context, cb stt.Callback) error {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()

	r.wg.Add(1)
	go r.dispatch()
	return nil
}

func (r *Recognizer) dispatch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case deliver := <-r.results:
			if r.cfg.Delay > 0 {
				select {
				case <-time.After(r.cfg.Delay):
				case <-r.done:
					return
				}
			}
			r.mu.Lock()
			cb := r.cb
			r.mu.Unlock()
			deliver(cb)
		}
	}
}

// SendAudio consumes a chunk and, every ChunksPerResult chunks, queues the
// next scripted result.
func (r *Recognizer) SendAudio(ctx context.Context, audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.cb == nil || r.ended {
		return nil
	}

	r.chunks++
	if r.chunks < r.cfg.ChunksPerResult {
		return nil
	}
	r.chunks = 0

	if r.utterance >= len(r.cfg.Utterances) {
		if !r.cfg.Loop {
			r.ended = true
			r.enqueue(func(cb stt.Callback) { cb.OnCancelled(nil) })
			return nil
		}
		r.utterance = 0
	}

	u := r.cfg.Utterances[r.utterance]
	speakerID := r.speakerID(u)
	if r.partialIndex < len(u.Partials) {
		text := u.Partials[r.partialIndex]
		r.partialIndex++
		r.enqueue(func(cb stt.Callback) { cb.OnInterim(text, speakerID) })
		return nil
	}

	r.utterance++
	r.partialIndex = 0
	r.enqueue(func(cb stt.Callback) { cb.OnFinal(u.Final, speakerID) })
	return nil
}

// enqueue must be called with r.mu held.
func (r *Recognizer) enqueue(deliver func(stt.Callback)) {
	select {
	case r.results <- deliver:
	default:
		// dispatcher is behind; the simulated engine drops the result
	}
}

func (r *Recognizer) speakerID(u Utterance) string {
	if !r.diarize {
		return ""
	}
	return u.SpeakerID
}

// Stop ends the session. If an utterance was in progress its final is
// delivered before Stop returns, the way a real engine flushes on stop.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true

	var flush func(stt.Callback)
	if r.partialIndex > 0 && r.utterance < len(r.cfg.Utterances) {
		u := r.cfg.Utterances[r.utterance]
		speakerID := r.speakerID(u)
		flush = func(cb stt.Callback) { cb.OnFinal(u.Final, speakerID) }
	}
	cb := r.cb
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	if flush != nil && cb != nil {
		flush(cb)
	}
	return nil
}
