package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/engine"
	"ai-speech-session-service/internal/service/history"
	"ai-speech-session-service/internal/service/session"
	"ai-speech-session-service/internal/service/stt"
)

// idleSource never produces audio; results are driven by the recognizer.
type idleSource struct{}

func (idleSource) Start(ctx context.Context, onChunk func([]byte)) error { return nil }
func (idleSource) Stop() error                                           { return nil }
func (idleSource) Close() error                                          { return nil }

// scriptedRecognizer hands its callback to the test and can emit a final
// while stopping, like an engine flushing the utterance in progress.
type scriptedRecognizer struct {
	mu        sync.Mutex
	cb        stt.Callback
	started   chan struct{}
	flushText string
}

func newScriptedRecognizer(flush string) *scriptedRecognizer {
	return &scriptedRecognizer{started: make(chan struct{}), flushText: flush}
}

func (r *scriptedRecognizer) Start(ctx context.Context, cb stt.Callback) error {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
	close(r.started)
	return nil
}

func (r *scriptedRecognizer) SendAudio(ctx context.Context, audio []byte) error { return nil }

func (r *scriptedRecognizer) Stop() error {
	r.mu.Lock()
	cb, text := r.cb, r.flushText
	r.flushText = ""
	r.mu.Unlock()
	if cb != nil && text != "" {
		time.Sleep(20 * time.Millisecond)
		cb.OnFinal(text, "")
	}
	return nil
}

func (r *scriptedRecognizer) callback(t *testing.T) stt.Callback {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer never started")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cb
}

func newScriptedApp(t *testing.T, rec *scriptedRecognizer) *Application {
	t.Helper()
	cfg := testConfig(t)
	cfg.Session.PollInterval = 10 * time.Millisecond
	cfg.Credentials.SubscriptionKey = "key"
	cfg.Credentials.Region = "eastus"

	a, err := New(cfg, zerolog.Nop(),
		WithOpener(audio.OpenerFunc(func(audio.Device) (audio.Source, error) { return idleSource{}, nil })),
		WithRecognizers(func(ctx context.Context, opts stt.Options) (stt.Recognizer, error) { return rec, nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func waitIdle(t *testing.T, c *session.Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != session.Idle {
		if time.Now().After(deadline) {
			t.Fatalf("coordinator still %v", c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlainSession_InterimsThenOneFinal(t *testing.T) {
	rec := newScriptedRecognizer("")
	a := newScriptedApp(t, rec)
	defer a.Shutdown()

	var (
		mu   sync.Mutex
		segs []bool
	)
	a.Bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.SegmentReceived {
			mu.Lock()
			segs = append(segs, ev.Segment.IsFinal)
			mu.Unlock()
		}
	})

	dev := audio.Device{ID: "fake-mic", Kind: audio.Microphone}
	if err := a.StartSessionAsync(engine.Plain, dev); err != nil {
		t.Fatalf("StartSessionAsync: %v", err)
	}
	cb := rec.callback(t)
	cb.OnInterim("hel", "")
	cb.OnInterim("hello", "")
	cb.OnFinal("hello world", "")

	a.Coordinator.StopSession()
	waitIdle(t, a.Coordinator)

	mu.Lock()
	got := append([]bool(nil), segs...)
	mu.Unlock()
	want := []bool{false, false, true}
	if len(got) != len(want) {
		t.Fatalf("segments finality = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segments finality = %v, want %v", got, want)
		}
	}

	entries, err := a.Recorder.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1: %+v", len(entries), entries)
	}
	if entries[0].Speaker != "" || entries[0].Text != "hello world" {
		t.Errorf("history entry = %+v, want {speaker: \"\", text: \"hello world\"}", entries[0])
	}
	if last, ok := a.Coordinator.LastSession(); !ok || last.State != session.Completed {
		t.Errorf("last session = %+v, want Completed", last)
	}
}

func TestShutdown_RecordsFinalFlushedOnStop(t *testing.T) {
	rec := newScriptedRecognizer("flushed on stop")
	a := newScriptedApp(t, rec)

	dev := audio.Device{ID: "fake-mic", Kind: audio.Microphone}
	if err := a.StartSessionAsync(engine.Plain, dev); err != nil {
		t.Fatalf("StartSessionAsync: %v", err)
	}
	rec.callback(t).OnFinal("before shutdown", "")

	a.Shutdown()

	// the store is closed now; read the file back through a fresh one
	store, err := history.Open(a.Cfg.History.Backend, a.Cfg.History.Path)
	if err != nil {
		t.Fatalf("reopen history: %v", err)
	}
	defer store.Close()
	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}

	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	if len(texts) != 2 || texts[0] != "before shutdown" || texts[1] != "flushed on stop" {
		t.Errorf("history = %q, want [before shutdown, flushed on stop]", texts)
	}
}
