package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-speech-session-service/internal/app"
	"ai-speech-session-service/internal/config"
	"ai-speech-session-service/internal/service/audio"
)

// tickSource emits silence at a fixed pace until stopped.
type tickSource struct {
	once sync.Once
	stop chan struct{}
}

func (s *tickSource) Start(ctx context.Context, onChunk func([]byte)) error {
	go func() {
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		chunk := make([]byte, 320)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				onChunk(chunk)
			}
		}
	}()
	return nil
}

func (s *tickSource) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *tickSource) Close() error { return s.Stop() }

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	cfg := config.Default()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.jsonl")
	cfg.Session.PollInterval = 10 * time.Millisecond
	cfg.STT.MockDelay = 5 * time.Millisecond
	cfg.Credentials.SubscriptionKey = "key"
	cfg.Credentials.Region = "eastus"

	opener := audio.OpenerFunc(func(dev audio.Device) (audio.Source, error) {
		return &tickSource{stop: make(chan struct{})}, nil
	})
	a, err := app.New(cfg, zerolog.Nop(), app.WithOpener(opener))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(newTestApp(t))
	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestRouter_StartRejections(t *testing.T) {
	h := NewRouter(newTestApp(t))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"unknown mode", `{"mode":"9"}`, http.StatusBadRequest, "UnknownMode"},
		{"empty device", `{"mode":"plain","deviceKind":"microphone"}`, http.StatusBadRequest, "DeviceNotConfigured"},
		{"bad device kind", `{"device":"x","deviceKind":"speaker"}`, http.StatusBadRequest, "DeviceNotConfigured"},
		{"malformed body", `{`, http.StatusBadRequest, "BadRequest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/session/start", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := decode[errorResponse](t, rec); got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
		})
	}

	if got := decode[statusResponse](t, do(t, h, http.MethodGet, "/v1/session", "")); got.State != "Idle" {
		t.Errorf("state after rejections = %q, want Idle", got.State)
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	h := NewRouter(newTestApp(t))

	rec := do(t, h, http.MethodPost, "/v1/session/start", `{"mode":"plain"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status = %d (%s)", rec.Code, rec.Body.String())
	}
	started := decode[statusResponse](t, rec)
	if started.Active == nil || started.Active.Mode != "Plain" {
		t.Fatalf("start: unexpected body %+v", started)
	}

	rec = do(t, h, http.MethodPost, "/v1/session/start", `{"mode":"diarized"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start: status = %d, want 409", rec.Code)
	}

	// wait for at least one final line in history
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries := decode[[]historyEntry](t, do(t, h, http.MethodGet, "/v1/history", ""))
		if len(entries) > 0 {
			if entries[0].Text == "" {
				t.Errorf("history entry without text: %+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no history entry recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec := do(t, h, http.MethodPost, "/v1/session/stop", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("stop: status = %d", rec.Code)
	}

	deadline = time.Now().Add(5 * time.Second)
	var status statusResponse
	for {
		status = decode[statusResponse](t, do(t, h, http.MethodGet, "/v1/session", ""))
		if status.State == "Idle" && status.Last != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never finished: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Last.State != "Completed" || status.Last.Error != "" || status.Last.EndedAt == nil {
		t.Errorf("unexpected last session %+v", status.Last)
	}

	if rec := do(t, h, http.MethodDelete, "/v1/history", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: status = %d", rec.Code)
	}
	if entries := decode[[]historyEntry](t, do(t, h, http.MethodGet, "/v1/history", "")); len(entries) != 0 {
		t.Errorf("history not cleared: %d entries", len(entries))
	}
}

func TestRouter_StopWhenIdle(t *testing.T) {
	h := NewRouter(newTestApp(t))
	rec := do(t, h, http.MethodPost, "/v1/session/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[statusResponse](t, rec); got.State != "Idle" {
		t.Errorf("state = %q, want Idle", got.State)
	}
}
