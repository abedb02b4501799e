// Package logging provides structured logging with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
	File       string // optional append-only log file, always JSON
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init builds the root logger from cfg and returns it together with a close
// function for the file output. The zerolog global logger and global level
// are left alone; components receive the returned logger.
// The stdout output is always present; the file output is added when
// cfg.File is set.
func Init(cfg Config) (zerolog.Logger, func() error, error) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var stdout io.Writer = os.Stdout
	if cfg.Format == "console" {
		stdout = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	closeFn := func() error { return nil }
	writers := []io.Writer{stdout}
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	logger := New(zerolog.MultiLevelWriter(writers...)).Level(level)
	return logger, closeFn, nil
}

// New returns a logger writing to w with the common fields of the service.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// WithComponent returns a logger with a component tag.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().
		Str("component", component).
		Logger()
}

// WithSession returns a logger with session context.
func WithSession(logger zerolog.Logger, sessionID, mode string) zerolog.Logger {
	return logger.With().
		Str("sessionId", sessionID).
		Str("mode", mode).
		Logger()
}

// WithSegment returns a logger with segment context.
func WithSegment(logger zerolog.Logger, sessionID, utteranceID string) zerolog.Logger {
	return logger.With().
		Str("sessionId", sessionID).
		Str("utteranceId", utteranceID).
		Logger()
}
