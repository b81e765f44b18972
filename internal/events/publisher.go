// Package events publishes committed utterances.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/transcript"
)

// UtteranceEvent is the payload written for each committed utterance.
type UtteranceEvent struct {
	EventID      string    `json:"eventId"`
	ConnectionID string    `json:"connectionId"`
	UtteranceID  string    `json:"utteranceId"`
	Text         string    `json:"text"`
	Speaker      string    `json:"speaker"`
	Channel      string    `json:"channel,omitempty"`
	Confidence   float64   `json:"confidence"`
	Trigger      string    `json:"trigger"`
	Timestamp    time.Time `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// ConfigFrom builds publisher configuration from the relay config.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Brokers:   cfg.Brokers(),
		Topic:     cfg.KafkaTopic,
		Principal: cfg.KafkaPrincipal,
		Enabled:   cfg.KafkaEnabled,
	}
}

// Publisher writes utterance events for one client connection. Writes are
// asynchronous so a slow broker never stalls transcript delivery.
type Publisher struct {
	writer       *kafka.Writer
	connectionID string
	principal    string
	topic        string
	enabled      bool
	logger       zerolog.Logger
}

// New creates a publisher. Without Kafka it runs in log-only mode.
func New(cfg *Config, connectionID string, logger zerolog.Logger) *Publisher {
	logger = logger.With().Str("component", "events").Logger()

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		p := &Publisher{connectionID: connectionID, logger: logger}
		if cfg != nil {
			p.principal = cfg.Principal
			p.topic = cfg.Topic
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Msg("Failed to write to Kafka")
				observability.EventPublished("error")
				return
			}
			observability.EventPublished("ok")
		},
	}

	return &Publisher{
		writer:       writer,
		connectionID: connectionID,
		principal:    cfg.Principal,
		topic:        cfg.Topic,
		enabled:      true,
		logger:       logger,
	}
}

// NewEvent builds the event for a committed utterance.
func (p *Publisher) NewEvent(u transcript.Utterance) UtteranceEvent {
	return UtteranceEvent{
		EventID:      observability.NewCorrelationID(),
		ConnectionID: p.connectionID,
		UtteranceID:  u.ID,
		Text:         u.Text,
		Speaker:      u.Speaker,
		Channel:      u.Channel,
		Confidence:   u.Confidence,
		Trigger:      u.Trigger,
		Timestamp:    u.Timestamp,
	}
}

// PublishUtterance queues one utterance event. Messages are keyed by
// connection so one interview stays ordered within a partition.
func (p *Publisher) PublishUtterance(ctx context.Context, u transcript.Utterance) error {
	event := p.NewEvent(u)
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal event")
		return err
	}

	p.logger.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", p.connectionID).
		RawJSON("payload", payload).
		Msg("Publishing utterance")

	if !p.enabled || p.writer == nil {
		observability.EventPublished("log_only")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(p.connectionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("utterance")},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}

// CheckBrokers dials the first reachable broker. Disabled publishing is always
// healthy.
func CheckBrokers(ctx context.Context, cfg *Config) (bool, error) {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		return true, nil
	}
	var lastErr error
	for _, broker := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return true, nil
	}
	return false, fmt.Errorf("no Kafka broker reachable: %w", lastErr)
}
