// Package app wires the session service together: configuration, logging,
// metrics, the event bus and its consumers, the engine factory and the
// session coordinator, plus the HTTP, gRPC and metrics servers around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	grpcapi "ai-speech-session-service/internal/api/grpc"
	"ai-speech-session-service/internal/config"
	"ai-speech-session-service/internal/display"
	"ai-speech-session-service/internal/events"
	"ai-speech-session-service/internal/observability"
	"ai-speech-session-service/internal/observability/logging"
	"ai-speech-session-service/internal/observability/metrics"
	"ai-speech-session-service/internal/service/audio"
	"ai-speech-session-service/internal/service/auth"
	"ai-speech-session-service/internal/service/engine"
	"ai-speech-session-service/internal/service/history"
	"ai-speech-session-service/internal/service/session"
	"ai-speech-session-service/internal/service/stt"
	"ai-speech-session-service/internal/service/stt/google"
	"ai-speech-session-service/internal/service/stt/mock"
)

// startGrace is how long StartSessionAsync waits for an early rejection
// before reporting the session as accepted.
const startGrace = 200 * time.Millisecond

// shutdownGrace bounds how long Shutdown waits for a running session to
// tear down and deliver its last results.
const shutdownGrace = 5 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Bus         *events.Bus
	Store       history.Store
	Recorder    *history.Recorder
	Publisher   *events.Publisher
	Hub         *display.Hub
	GRPC        *grpcapi.Server
	Factory     *engine.Factory
	Coordinator *session.Coordinator

	baseCtx    context.Context
	cancelBase context.CancelFunc
	detach     []func()
	sessions   sync.WaitGroup
}

type options struct {
	opener      audio.Opener
	recognizers stt.Factory
	prober      auth.Prober
	detector    audio.VoiceDetector
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*options)

// WithOpener sets the device opener. Without one only file devices can be
// opened; live capture comes from the portaudio package.
func WithOpener(o audio.Opener) Option { return func(opts *options) { opts.opener = o } }

// WithRecognizers replaces the recognizer factory.
func WithRecognizers(f stt.Factory) Option { return func(opts *options) { opts.recognizers = f } }

// WithProber replaces the authentication prober.
func WithProber(p auth.Prober) Option { return func(opts *options) { opts.prober = p } }

// WithDetector sets the voice detector used for capture-only progress.
func WithDetector(d audio.VoiceDetector) Option { return func(opts *options) { opts.detector = d } }

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent(logger, "application"),
	}
	a.baseCtx, a.cancelBase = context.WithCancel(context.Background())

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewMetrics(a.Registry)
	a.Bus = events.NewBus(logger, a.Metrics)

	store, err := history.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		a.cancelBase()
		return nil, fmt.Errorf("open history store: %w", err)
	}
	a.Store = store
	a.Recorder = history.NewRecorder(store, logger, a.Metrics)

	a.Publisher = events.NewPublisher(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	}, logger, a.Metrics)

	a.Hub = display.NewHub(logger)
	a.GRPC = grpcapi.NewServer(logger, a.Metrics)

	a.detach = append(a.detach,
		a.Recorder.Attach(a.Bus),
		a.Publisher.Attach(a.Bus),
		a.GRPC.Attach(a.Bus),
	)

	a.Factory = engine.NewFactory(a.engineDeps(o, logger))
	a.Coordinator = session.NewCoordinator(a.Factory, a.Bus, a.Recorder, logger, a.Metrics)

	a.Logger.Info().
		Str("stt", cfg.STT.Provider).
		Str("capture", cfg.Capture.Source).
		Str("history", cfg.History.Backend).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("AI Speech Session service application created")
	return a, nil
}

func (a *Application) engineDeps(o options, logger zerolog.Logger) engine.Deps {
	cfg := a.Cfg
	deps := engine.Deps{
		Bus:    a.Bus,
		Opener: o.opener,
		Credentials: auth.Credentials{
			Key:    cfg.Credentials.SubscriptionKey,
			Region: cfg.Credentials.Region,
		},
		Recognizers:      o.recognizers,
		Prober:           o.prober,
		Detector:         o.detector,
		Logger:           logger,
		Metrics:          a.Metrics,
		PollInterval:     cfg.Session.PollInterval,
		ProgressInterval: cfg.Session.ProgressInterval,
		AuthTimeout:      cfg.STT.AuthTimeout,
	}

	if deps.Opener == nil {
		deps.Opener = audio.FileOpener{FramesPerBuffer: cfg.Capture.FramesPerBuffer}
	}

	if deps.Recognizers == nil {
		switch cfg.STT.Provider {
		case "google":
			gc := google.DefaultConfig()
			gc.LanguageCode = cfg.STT.LanguageCode
			gc.SampleRateHz = int32(cfg.STT.SampleRateHz)
			gc.InterimResults = cfg.STT.InterimResults
			gc.AudioEncoding = cfg.STT.AudioEncoding
			gc.MinSpeakers = int32(cfg.STT.MinSpeakers)
			gc.MaxSpeakers = int32(cfg.STT.MaxSpeakers)
			gc.APIKey = cfg.Credentials.SubscriptionKey
			gc.Region = cfg.Credentials.Region
			gc.SpeechEndTimeout = cfg.STT.SpeechEndTimeout
			deps.Recognizers = google.Factory(gc)
		default:
			mc := mock.DefaultConfig()
			mc.Delay = cfg.STT.MockDelay
			deps.Recognizers = mock.Factory(mc)
		}
	}

	if deps.Prober == nil && cfg.STT.AuthProbe {
		deps.Prober = auth.NewHTTPProber(cfg.STT.AuthProbeURL, cfg.STT.AuthTimeout)
	}
	return deps
}

// Device returns the configured default capture device.
func (a *Application) Device() (audio.Device, error) {
	if a.Cfg.Capture.Source == "wav" {
		return audio.Device{ID: a.Cfg.Capture.WAVPath, Kind: audio.File}, nil
	}
	kind, err := audio.ParseDeviceKind(a.Cfg.Session.DeviceKind)
	if err != nil {
		return audio.Device{}, err
	}
	return audio.Device{ID: a.Cfg.Session.DeviceID, Kind: kind}, nil
}

// Mode returns the configured default session mode.
func (a *Application) Mode() (engine.Mode, error) {
	return engine.ParseMode(a.Cfg.Session.Mode)
}

// StartSessionAsync starts a session on a background goroutine tied to the
// application lifetime. It returns the coordinator's error when the start is
// rejected or fails within startGrace, and nil once the session is under
// way.
func (a *Application) StartSessionAsync(mode engine.Mode, dev audio.Device) error {
	if _, active := a.Coordinator.ActiveSession(); active {
		return engine.NewError(engine.AlreadyRunning, "a session is already running", nil)
	}

	errc := make(chan error, 1)
	a.sessions.Add(1)
	go func() {
		defer a.sessions.Done()
		errc <- a.Coordinator.StartSession(a.baseCtx, mode, dev)
	}()

	select {
	case err := <-errc:
		return err
	case <-time.After(startGrace):
		return nil
	}
}

// Ready reports whether the service can accept sessions.
func (a *Application) Ready() bool {
	select {
	case <-a.baseCtx.Done():
		return false
	default:
		return a.Store != nil
	}
}

// Serve runs the HTTP API, the gRPC server, the metrics server and the
// viewer hub until ctx is done or one of them fails.
func (a *Application) Serve(ctx context.Context, handler http.Handler) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("AI Speech Session service starting")

	httpSrv := &http.Server{
		Addr:              a.Cfg.Service.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsSrv := observability.NewServer(a.Cfg.Service.MetricsAddr, a.Registry, a.Ready, a.Logger)

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	// viewers only get events while the hub loop runs
	detachHub := a.Hub.Attach(a.Bus)
	defer detachHub()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("addr", httpSrv.Addr).Msg("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.GRPC.Serve(lis)
	})
	g.Go(obsSrv.ListenAndServe)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.GRPC.Stop()
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = obsSrv.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// Shutdown stops any running session, waits up to shutdownGrace for it to
// finish so results flushed on stop still reach the sinks, and releases
// resources.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("AI Speech Session service shutting down")
	a.Coordinator.StopSession()

	done := make(chan struct{})
	go func() {
		a.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		a.Logger.Warn().Dur("grace", shutdownGrace).Msg("Session did not stop in time, cancelling")
	}
	a.close()
}

func (a *Application) close() {
	a.cancelBase()
	for _, d := range a.detach {
		d()
	}
	a.detach = nil
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Kafka publisher")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
}
