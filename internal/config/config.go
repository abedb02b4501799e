// Package config loads service configuration from defaults, an optional TOML
// file, an optional .env file and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the complete service configuration. It is constructed once in
// main and passed explicitly to every component that needs it.
type Config struct {
	Service       ServiceConfig       `toml:"service"`
	Session       SessionConfig       `toml:"session"`
	Credentials   CredentialsConfig   `toml:"credentials"`
	STT           STTConfig           `toml:"stt"`
	Capture       CaptureConfig       `toml:"capture"`
	History       HistoryConfig       `toml:"history"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Observability ObservabilityConfig `toml:"observability"`
}

// ServiceConfig holds process level settings.
type ServiceConfig struct {
	Name        string `toml:"name"`
	HTTPAddr    string `toml:"http_addr"`
	GRPCPort    string `toml:"grpc_port"`
	MetricsAddr string `toml:"metrics_addr"`
}

// SessionConfig holds the defaults for a transcription session.
type SessionConfig struct {
	Mode             string        `toml:"mode"` // "1" plain, "2" diarized, "3" capture only
	DeviceID         string        `toml:"device_id"`
	DeviceKind       string        `toml:"device_kind"` // microphone, loopback, file
	PollInterval     time.Duration `toml:"poll_interval"`
	ProgressInterval time.Duration `toml:"progress_interval"`
}

// CredentialsConfig holds the recognition engine credentials.
type CredentialsConfig struct {
	SubscriptionKey string `toml:"subscription_key"`
	Region          string `toml:"region"`
}

// STTConfig configures the speech recognition engine.
type STTConfig struct {
	Provider       string        `toml:"provider"` // google, mock
	LanguageCode   string        `toml:"language_code"`
	SampleRateHz   int           `toml:"sample_rate_hz"`
	InterimResults bool          `toml:"interim_results"`
	AudioEncoding  string        `toml:"audio_encoding"`
	MinSpeakers    int           `toml:"min_speakers"`
	MaxSpeakers    int           `toml:"max_speakers"`
	AuthProbe      bool          `toml:"auth_probe"`
	AuthProbeURL   string        `toml:"auth_probe_url"` // {region} is substituted
	AuthTimeout    time.Duration `toml:"auth_timeout"`
	// SpeechEndTimeout > 0 lets the engine end a session after silence.
	SpeechEndTimeout time.Duration `toml:"speech_end_timeout"`
	MockDelay        time.Duration `toml:"mock_delay"`
}

// CaptureConfig configures the audio source.
type CaptureConfig struct {
	Source          string `toml:"source"` // portaudio, wav
	WAVPath         string `toml:"wav_path"`
	FramesPerBuffer int    `toml:"frames_per_buffer"`
	VADEnabled      bool   `toml:"vad_enabled"`
	VADMode         int    `toml:"vad_mode"`
}

// HistoryConfig configures the transcript history store.
type HistoryConfig struct {
	Backend string `toml:"backend"` // file, sqlite
	Path    string `toml:"path"`
}

// KafkaConfig configures the optional Kafka transcript sink.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	TopicPartial string   `toml:"topic_partial"`
	TopicFinal   string   `toml:"topic_final"`
	Principal    string   `toml:"principal"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // json, console
	LogFile   string `toml:"log_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "ai-speech-session-service",
			HTTPAddr:    ":8080",
			GRPCPort:    "50051",
			MetricsAddr: ":9090",
		},
		Session: SessionConfig{
			Mode:             "1",
			DeviceID:         "default",
			DeviceKind:       "microphone",
			PollInterval:     100 * time.Millisecond,
			ProgressInterval: time.Second,
		},
		STT: STTConfig{
			Provider:       "mock",
			LanguageCode:   "en-US",
			SampleRateHz:   16000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
			MinSpeakers:    1,
			MaxSpeakers:    6,
			AuthProbeURL:   "https://{region}-speech.googleapis.com/v1/operations",
			AuthTimeout:    5 * time.Second,
			MockDelay:      50 * time.Millisecond,
		},
		Capture: CaptureConfig{
			Source:          "portaudio",
			FramesPerBuffer: 1600, // 100ms at 16kHz
			VADMode:         2,
		},
		History: HistoryConfig{
			Backend: "file",
			Path:    "./data/history.jsonl",
		},
		Kafka: KafkaConfig{
			TopicPartial: "transcription.segment.interim",
			TopicFinal:   "transcription.segment.final",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration. path may name a TOML file; when empty the
// CONFIG_FILE environment variable is consulted. A missing .env file is not
// an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Service.Name = envOrDefault("SERVICE_NAME", c.Service.Name)
	c.Service.HTTPAddr = envOrDefault("HTTP_ADDR", c.Service.HTTPAddr)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.MetricsAddr = envOrDefault("METRICS_ADDR", c.Service.MetricsAddr)

	c.Session.Mode = envOrDefault("SESSION_MODE", c.Session.Mode)
	c.Session.DeviceID = envOrDefault("SESSION_DEVICE", c.Session.DeviceID)
	c.Session.DeviceKind = envOrDefault("SESSION_DEVICE_KIND", c.Session.DeviceKind)
	c.Session.PollInterval = envOrDefaultDuration("SESSION_POLL_INTERVAL", c.Session.PollInterval)
	c.Session.ProgressInterval = envOrDefaultDuration("SESSION_PROGRESS_INTERVAL", c.Session.ProgressInterval)

	c.Credentials.SubscriptionKey = envOrDefault("SPEECH_KEY", c.Credentials.SubscriptionKey)
	c.Credentials.Region = envOrDefault("SPEECH_REGION", c.Credentials.Region)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", c.STT.InterimResults)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.MinSpeakers = envOrDefaultInt("STT_MIN_SPEAKERS", c.STT.MinSpeakers)
	c.STT.MaxSpeakers = envOrDefaultInt("STT_MAX_SPEAKERS", c.STT.MaxSpeakers)
	c.STT.AuthProbe = envOrDefaultBool("STT_AUTH_PROBE", c.STT.AuthProbe)
	c.STT.AuthProbeURL = envOrDefault("STT_AUTH_PROBE_URL", c.STT.AuthProbeURL)
	c.STT.AuthTimeout = envOrDefaultDuration("STT_AUTH_TIMEOUT", c.STT.AuthTimeout)
	c.STT.SpeechEndTimeout = envOrDefaultDuration("STT_SPEECH_END_TIMEOUT", c.STT.SpeechEndTimeout)
	c.STT.MockDelay = envOrDefaultDuration("STT_MOCK_DELAY", c.STT.MockDelay)

	c.Capture.Source = envOrDefault("CAPTURE_SOURCE", c.Capture.Source)
	c.Capture.WAVPath = envOrDefault("CAPTURE_WAV_PATH", c.Capture.WAVPath)
	c.Capture.FramesPerBuffer = envOrDefaultInt("CAPTURE_FRAMES_PER_BUFFER", c.Capture.FramesPerBuffer)
	c.Capture.VADEnabled = envOrDefaultBool("CAPTURE_VAD_ENABLED", c.Capture.VADEnabled)
	c.Capture.VADMode = envOrDefaultInt("CAPTURE_VAD_MODE", c.Capture.VADMode)

	c.History.Backend = envOrDefault("HISTORY_BACKEND", c.History.Backend)
	c.History.Path = envOrDefault("HISTORY_PATH", c.History.Path)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", c.Kafka.TopicPartial)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Name
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.LogFile = envOrDefault("LOG_FILE", c.Observability.LogFile)
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session poll interval must be positive, got %v", c.Session.PollInterval)
	}
	switch c.STT.Provider {
	case "google", "mock":
	default:
		return fmt.Errorf("unknown STT provider %q", c.STT.Provider)
	}
	switch c.Capture.Source {
	case "portaudio":
	case "wav":
		if c.Capture.WAVPath == "" {
			return errors.New("CAPTURE_WAV_PATH is required for the wav capture source")
		}
	default:
		return fmt.Errorf("unknown capture source %q", c.Capture.Source)
	}
	switch c.History.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
