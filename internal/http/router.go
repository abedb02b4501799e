package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-speech-session-service/internal/app"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/engine"
	"ai-speech-session-service/internal/service/session"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", h.status)
		r.Post("/session/start", h.start)
		r.Post("/session/stop", h.stop)
		r.Get("/history", h.history)
		r.Delete("/history", h.clearHistory)
		r.Handle("/ws", application.Hub)
	})

	return r
}

type handlers struct {
	app *app.Application
}

type sessionView struct {
	ID        string     `json:"id"`
	Mode      string     `json:"mode"`
	Device    string     `json:"device"`
	State     string     `json:"state"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func viewOf(s session.Session) *sessionView {
	v := &sessionView{
		ID:        s.ID,
		Mode:      s.Mode.String(),
		Device:    s.Device.String(),
		State:     s.State.String(),
		StartedAt: s.StartedAt,
		Error:     s.Err,
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		v.EndedAt = &ended
	}
	return v
}

type statusResponse struct {
	State  string       `json:"state"`
	Active *sessionView `json:"active,omitempty"`
	Last   *sessionView `json:"last,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	c := h.app.Coordinator
	resp := statusResponse{State: c.State().String()}
	if s, ok := c.ActiveSession(); ok {
		resp.Active = viewOf(s)
	}
	if s, ok := c.LastSession(); ok {
		resp.Last = viewOf(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

type startRequest struct {
	Mode       string `json:"mode"`
	Device     string `json:"device"`
	DeviceKind string `json:"deviceKind"`
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "BadRequest"})
			return
		}
	}

	mode, err := h.app.Mode()
	if req.Mode != "" {
		mode, err = engine.ParseMode(req.Mode)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	dev, err := h.device(req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.app.StartSessionAsync(mode, dev); err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{State: h.app.Coordinator.State().String()}
	if s, ok := h.app.Coordinator.ActiveSession(); ok {
		resp.Active = viewOf(s)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handlers) device(req startRequest) (audio.Device, error) {
	if req.Device == "" && req.DeviceKind == "" {
		return h.app.Device()
	}
	kind, err := audio.ParseDeviceKind(req.DeviceKind)
	if err != nil {
		return audio.Device{}, engine.NewError(engine.DeviceNotConfigured, err.Error(), nil)
	}
	return audio.Device{ID: req.Device, Kind: kind}, nil
}

func (h *handlers) stop(w http.ResponseWriter, _ *http.Request) {
	h.app.Coordinator.StopSession()
	writeJSON(w, http.StatusAccepted, statusResponse{State: h.app.Coordinator.State().String()})
}

type historyEntry struct {
	SessionID string    `json:"sessionId,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *handlers) history(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.app.Recorder.Entries()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "HistoryUnavailable"})
		return
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) clearHistory(w http.ResponseWriter, _ *http.Request) {
	h.app.Recorder.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.AlreadyRunning:
		return http.StatusConflict
	case engine.UnknownMode, engine.DeviceNotConfigured, engine.CredentialsMissing:
		return http.StatusBadRequest
	case engine.AuthenticationFailed, engine.ConnectionFailed, engine.EngineError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	writeJSON(w, statusFor(kind), errorResponse{Error: engine.ReasonOf(err), Kind: kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
