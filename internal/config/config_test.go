package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"CONFIG_FILE", "SERVICE_NAME", "HTTP_ADDR", "GRPC_PORT", "METRICS_ADDR",
	"SESSION_MODE", "SESSION_DEVICE", "SESSION_POLL_INTERVAL", "SESSION_PROGRESS_INTERVAL",
	"SPEECH_KEY", "SPEECH_REGION",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ", "STT_INTERIM_RESULTS",
	"STT_AUTH_PROBE", "CAPTURE_SOURCE", "CAPTURE_WAV_PATH", "HISTORY_BACKEND", "HISTORY_PATH",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.Name != "ai-speech-session-service" {
		t.Errorf("expected default service name, got %s", cfg.Service.Name)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Session.Mode != "1" {
		t.Errorf("expected default mode '1', got %s", cfg.Session.Mode)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval 100ms, got %v", cfg.Session.PollInterval)
	}
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if !cfg.STT.InterimResults {
		t.Error("expected interim results enabled by default")
	}
	if cfg.History.Backend != "file" {
		t.Errorf("expected default history backend 'file', got %s", cfg.History.Backend)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Credentials.SubscriptionKey != "" || cfg.Credentials.Region != "" {
		t.Error("expected no default credentials")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("SESSION_MODE", "2")
	t.Setenv("SESSION_POLL_INTERVAL", "50ms")
	t.Setenv("SPEECH_KEY", "secret")
	t.Setenv("SPEECH_REGION", "eu")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	t.Setenv("STT_INTERIM_RESULTS", "false")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Session.Mode != "2" {
		t.Errorf("expected mode '2', got %s", cfg.Session.Mode)
	}
	if cfg.Session.PollInterval != 50*time.Millisecond {
		t.Errorf("expected poll interval 50ms, got %v", cfg.Session.PollInterval)
	}
	if cfg.Credentials.SubscriptionKey != "secret" || cfg.Credentials.Region != "eu" {
		t.Errorf("unexpected credentials %+v", cfg.Credentials)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults {
		t.Error("expected interim results disabled")
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("STT_INTERIM_RESULTS", "invalid")
	t.Setenv("SESSION_POLL_INTERVAL", "invalid")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if !cfg.STT.InterimResults {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval on invalid input, got %v", cfg.Session.PollInterval)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[session]
mode = "3"
poll_interval = "200ms"

[history]
backend = "sqlite"
path = "/tmp/history.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HISTORY_PATH", "/var/lib/history.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Session.Mode != "3" {
		t.Errorf("expected mode from file, got %s", cfg.Session.Mode)
	}
	if cfg.Session.PollInterval != 200*time.Millisecond {
		t.Errorf("expected poll interval from file, got %v", cfg.Session.PollInterval)
	}
	if cfg.History.Backend != "sqlite" {
		t.Errorf("expected backend from file, got %s", cfg.History.Backend)
	}
	if cfg.History.Path != "/var/lib/history.db" {
		t.Errorf("expected environment to override file, got %s", cfg.History.Path)
	}
	// untouched sections keep their defaults
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language, got %s", cfg.STT.LanguageCode)
	}
}

func TestLoad_MissingTOMLFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServiceName(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_NAME", "my-service")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service name, got %s", cfg.Kafka.Principal)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero poll interval", func(c *Config) { c.Session.PollInterval = 0 }, true},
		{"unknown provider", func(c *Config) { c.STT.Provider = "azure" }, true},
		{"wav without path", func(c *Config) { c.Capture.Source = "wav" }, true},
		{"wav with path", func(c *Config) { c.Capture.Source = "wav"; c.Capture.WAVPath = "a.wav" }, false},
		{"unknown history backend", func(c *Config) { c.History.Backend = "s3" }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envValue)

			got := envOrDefaultBool("TEST_BOOL_VAR", tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
