package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the transcription relay
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"5000"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"50051"` // empty disables the gRPC health listener

	// Deepgram live transcription. The API key is optional at load time:
	// a missing key is reported to each client that asks for a session.
	DeepgramAPIKey         string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramURL            string `envconfig:"DEEPGRAM_URL" default:"wss://api.deepgram.com/v1/listen"`
	DeepgramModel          string `envconfig:"DEEPGRAM_MODEL" default:"nova-3"`
	DeepgramLanguage       string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramTransport      string `envconfig:"DEEPGRAM_TRANSPORT" default:"ws"` // ws (raw protocol) or sdk
	DeepgramEndpointingMs  int    `envconfig:"DEEPGRAM_ENDPOINTING_MS" default:"300"`
	DeepgramUtteranceEndMs int    `envconfig:"DEEPGRAM_UTTERANCE_END_MS" default:"1000"`

	// Session lifecycle
	KeepAliveIntervalMs int `envconfig:"KEEPALIVE_INTERVAL_MS" default:"8000"` // idle window before a KeepAlive frame
	CloseTimeoutMs      int `envconfig:"CLOSE_TIMEOUT_MS" default:"2000"`      // graceful close wait before force close
	AudioQueueChunks    int `envconfig:"AUDIO_QUEUE_CHUNKS" default:"64"`      // per-session outbound audio queue
	HistoryLimit        int `envconfig:"HISTORY_LIMIT" default:"200"`          // committed utterances kept per connection

	// Resilience configuration (upstream dial only)
	ReconnectMaxAttempts int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`
	ReconnectBackoffMs   int `envconfig:"RECONNECT_BACKOFF_MS" default:"250"`

	// Utterance publishing
	KafkaEnabled   bool   `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers   string `envconfig:"KAFKA_BROKERS" default:""` // comma separated
	KafkaTopic     string `envconfig:"KAFKA_TOPIC" default:"interview.transcript.utterance"`
	KafkaPrincipal string `envconfig:"KAFKA_PRINCIPAL" default:"stt-relay"`

	// Chat collaborator
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// Static company dataset (YAML)
	CompanyDataFile string `envconfig:"COMPANY_DATA_FILE" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would make the relay misbehave at runtime.
func (c *Config) Validate() error {
	switch c.DeepgramTransport {
	case "ws", "sdk":
	default:
		return fmt.Errorf("DEEPGRAM_TRANSPORT must be ws or sdk, got %q", c.DeepgramTransport)
	}
	if c.AudioQueueChunks <= 0 {
		return fmt.Errorf("AUDIO_QUEUE_CHUNKS must be positive")
	}
	if c.KeepAliveIntervalMs <= 0 {
		return fmt.Errorf("KEEPALIVE_INTERVAL_MS must be positive")
	}
	if c.CloseTimeoutMs <= 0 {
		return fmt.Errorf("CLOSE_TIMEOUT_MS must be positive")
	}
	if c.ReconnectMaxAttempts < 1 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be at least 1")
	}
	if c.ReconnectBackoffMs < 0 {
		return fmt.Errorf("RECONNECT_BACKOFF_MS must not be negative")
	}
	if c.KafkaEnabled && len(c.Brokers()) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	return nil
}

// HasDeepgramCredentials reports whether upstream sessions can be opened.
func (c *Config) HasDeepgramCredentials() bool {
	return strings.TrimSpace(c.DeepgramAPIKey) != ""
}

// Brokers splits KafkaBrokers into a list, skipping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// KeepAliveInterval returns the upstream idle window.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalMs) * time.Millisecond
}

// CloseTimeout returns the graceful close wait.
func (c *Config) CloseTimeout() time.Duration {
	return time.Duration(c.CloseTimeoutMs) * time.Millisecond
}

// ReconnectBackoff returns the initial dial retry backoff.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoffMs) * time.Millisecond
}
