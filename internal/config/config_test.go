package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if !cfg.HasDeepgramCredentials() {
		t.Error("Expected HasDeepgramCredentials to be true")
	}
}

func TestLoad_MissingCredentialsIsNotFatal(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected missing key to be tolerated at load time, got %v", err)
	}
	if cfg.HasDeepgramCredentials() {
		t.Error("Expected HasDeepgramCredentials to be false")
	}
}

func TestLoad_WhitespaceKeyIsNotACredential(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "   ")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.HasDeepgramCredentials() {
		t.Error("Expected whitespace-only key to count as missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "5000" {
		t.Errorf("Expected default Port '5000', got '%s'", cfg.Port)
	}
	if cfg.DeepgramModel != "nova-3" {
		t.Errorf("Expected default DeepgramModel 'nova-3', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}
	if cfg.DeepgramTransport != "ws" {
		t.Errorf("Expected default DeepgramTransport 'ws', got '%s'", cfg.DeepgramTransport)
	}
	if cfg.KeepAliveInterval() != 8*time.Second {
		t.Errorf("Expected default keepalive 8s, got %v", cfg.KeepAliveInterval())
	}
	if cfg.CloseTimeout() != 2*time.Second {
		t.Errorf("Expected default close timeout 2s, got %v", cfg.CloseTimeout())
	}
	if cfg.AudioQueueChunks != 64 {
		t.Errorf("Expected default AudioQueueChunks 64, got %d", cfg.AudioQueueChunks)
	}
	if cfg.KafkaEnabled {
		t.Error("Expected Kafka to be disabled by default")
	}
}

func TestLoad_InvalidTransport(t *testing.T) {
	t.Setenv("DEEPGRAM_TRANSPORT", "grpc")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown DEEPGRAM_TRANSPORT")
	}
}

func TestLoad_KafkaRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when Kafka is enabled without brokers")
	}
}

func TestConfig_Brokers(t *testing.T) {
	cfg := &Config{KafkaBrokers: "a:9092, b:9092,,"}
	brokers := cfg.Brokers()
	if len(brokers) != 2 || brokers[0] != "a:9092" || brokers[1] != "b:9092" {
		t.Errorf("Unexpected brokers: %v", brokers)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.ReconnectMaxAttempts != 3 {
		t.Errorf("Expected default ReconnectMaxAttempts 3, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff() != 250*time.Millisecond {
		t.Errorf("Expected default ReconnectBackoff 250ms, got %v", cfg.ReconnectBackoff())
	}
}

func TestLoad_RejectsNonPositiveKeepAlive(t *testing.T) {
	for _, v := range []string{"0", "-5"} {
		t.Setenv("KEEPALIVE_INTERVAL_MS", v)
		if _, err := LoadFromEnv(); err == nil {
			t.Errorf("Expected error for KEEPALIVE_INTERVAL_MS=%s", v)
		}
	}
}

func TestLoad_RejectsInvalidReconnectSettings(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"RECONNECT_MAX_ATTEMPTS", "0"},
		{"RECONNECT_MAX_ATTEMPTS", "-1"},
		{"RECONNECT_BACKOFF_MS", "-250"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ZeroBackoffAllowed(t *testing.T) {
	t.Setenv("RECONNECT_BACKOFF_MS", "0")
	if _, err := LoadFromEnv(); err != nil {
		t.Errorf("Expected zero backoff to load, got %v", err)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
