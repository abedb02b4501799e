package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ai-speech-session-service/internal/app"
	"ai-speech-session-service/internal/config"
	"ai-speech-session-service/internal/observability/logging"
	"ai-speech-session-service/internal/service/audio/portaudio"
	"ai-speech-session-service/internal/service/audio/vad"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "speech-session",
	Short: "Live speech transcription sessions",
	Long: `speech-session captures live audio and streams it to a speech
recognition engine, publishing interim and final transcript segments.

Modes:
  1, plain     - real-time transcription
  2, diarized  - transcription with speaker labels
  3, capture   - audio capture only, no recognition`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (default: $CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// setup loads configuration, initializes logging and builds the
// application. The returned cleanup closes the application and the log file.
func setup(quiet bool) (*app.Application, zerolog.Logger, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	logCfg := logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		File:   cfg.Observability.LogFile,
	}
	switch {
	case verbose:
		logCfg.Level = "debug"
	case quiet:
		logCfg.Level = "warn"
	}
	logger, closeLog, err := logging.Init(logCfg)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("init logging: %w", err)
	}
	logger = logger.With().Str("service", cfg.Service.Name).Logger()

	opts := []app.Option{
		app.WithOpener(portaudio.Opener{FramesPerBuffer: cfg.Capture.FramesPerBuffer}),
	}
	if cfg.Capture.VADEnabled {
		det, err := vad.NewWebRTCDetector(cfg.Capture.VADMode)
		if err != nil {
			_ = closeLog()
			return nil, logger, nil, fmt.Errorf("create voice detector: %w", err)
		}
		opts = append(opts, app.WithDetector(det))
	}

	application, err := app.New(cfg, logger, opts...)
	if err != nil {
		_ = closeLog()
		return nil, logger, nil, err
	}

	cleanup := func() {
		application.Shutdown()
		_ = closeLog()
	}
	return application, logger, cleanup, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
