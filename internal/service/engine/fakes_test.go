package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/auth"
	"ai-speech-session-service/internal/service/stt"
)

// fakeSource lets a test push chunks as if the device captured them.
type fakeSource struct {
	mu      sync.Mutex
	onChunk func([]byte)
	started bool
	stops   int
	closes  int
}

func (s *fakeSource) Start(ctx context.Context, onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = onChunk
	s.started = true
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) push(chunk []byte) {
	s.mu.Lock()
	f := s.onChunk
	s.mu.Unlock()
	f(chunk)
}

// fakeRecognizer records audio and exposes the callback to the test.
type fakeRecognizer struct {
	mu       sync.Mutex
	cb       stt.Callback
	opts     stt.Options
	sent     int
	sendErr  error
	startErr error
	stops    int
}

func (r *fakeRecognizer) Start(ctx context.Context, cb stt.Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.cb = cb
	return nil
}

func (r *fakeRecognizer) SendAudio(ctx context.Context, audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
	return r.sendErr
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecognizer) callback() stt.Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cb
}

// eventLog collects bus events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofKind(k events.Kind) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, ev := range l.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	deps    Deps
	src     *fakeSource
	rec     *fakeRecognizer
	log     *eventLog
	metrics *metrics.Metrics
	created int
}

func newHarness() *harness {
	h := &harness{
		src:     &fakeSource{},
		rec:     &fakeRecognizer{},
		log:     &eventLog{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	bus := events.NewBus(zerolog.Nop(), h.metrics)
	bus.Subscribe(h.log.handle)

	h.deps = Deps{
		Bus: bus,
		Opener: audio.OpenerFunc(func(audio.Device) (audio.Source, error) {
			return h.src, nil
		}),
		Recognizers: func(ctx context.Context, opts stt.Options) (stt.Recognizer, error) {
			h.created++
			h.rec.opts = opts
			return h.rec, nil
		},
		Credentials:      auth.Credentials{Key: "key", Region: "eastus"},
		Logger:           zerolog.Nop(),
		Metrics:          h.metrics,
		PollInterval:     10 * time.Millisecond,
		ProgressInterval: 20 * time.Millisecond,
	}
	return h
}

var fakeMic = audio.Device{ID: "fake-mic", Name: "Fake Mic", Kind: audio.Microphone}

type runResult struct {
	err error
	at  time.Time
}

// start runs the adapter on a goroutine and waits until it streams.
func start(t *testing.T, ctx context.Context, a Adapter) <-chan runResult {
	t.Helper()
	done := make(chan runResult, 1)
	go func() {
		err := a.Run(ctx, fakeMic)
		done <- runResult{err: err, at: time.Now()}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for a.State() != Streaming {
		if time.Now().After(deadline) {
			t.Fatalf("adapter never reached Streaming, state=%s", a.State())
		}
		time.Sleep(time.Millisecond)
	}
	return done
}

func waitResult(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return runResult{}
	}
}
