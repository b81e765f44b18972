package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/resilience"
	"github.com/interviewmate/stt-relay/internal/stt"
)

// Dual-channel speaker labels.
const (
	LabelMe          = "me"
	LabelInterviewer = "interviewer"
)

// Params describes the session a client asked for.
type Params struct {
	ChannelID    string
	Language     string
	Diarize      bool
	SpeakerLabel string // "me" or "interviewer"; empty in diarization mode
}

// Validate rejects contradictory or unknown modes.
func (p Params) Validate() error {
	switch p.SpeakerLabel {
	case "", LabelMe, LabelInterviewer:
	default:
		return &stt.UnsupportedModeError{Reason: fmt.Sprintf("unknown speaker label %q", p.SpeakerLabel)}
	}
	if p.Diarize && p.SpeakerLabel != "" {
		return &stt.UnsupportedModeError{Reason: "diarization cannot be combined with an explicit speaker label"}
	}
	return nil
}

// Handler receives session events. Calls for one Session come from one
// goroutine at a time and in upstream order; OnClosed is the last call and
// happens exactly once. err is nil for a clean close.
type Handler interface {
	OnEvent(s *Session, ev stt.Event)
	OnClosed(s *Session, err error)
}

// Manager opens upstream sessions. It holds only read-only configuration and
// may be shared; every Session it returns belongs to one caller.
type Manager struct {
	config     *config.Config
	dialer     stt.Dialer
	normalizer stt.Normalizer
	logger     zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg *config.Config, dialer stt.Dialer, normalizer stt.Normalizer, logger zerolog.Logger) *Manager {
	return &Manager{
		config:     cfg,
		dialer:     dialer,
		normalizer: normalizer,
		logger:     logger,
	}
}

// NewDialer picks the upstream transport named by DEEPGRAM_TRANSPORT.
func NewDialer(cfg *config.Config) stt.Dialer {
	if cfg.DeepgramTransport == "sdk" {
		return stt.NewSDKDialer()
	}
	return stt.NewWSDialer()
}

// Open validates params, dials the upstream and returns a READY session.
// Mode and credential errors are returned before any network activity.
func (m *Manager) Open(ctx context.Context, params Params, handler Handler) (*Session, error) {
	logger := m.logger.With().
		Str("channel", params.ChannelID).
		Str("speaker_label", params.SpeakerLabel).
		Bool("diarize", params.Diarize).
		Logger()

	s := newSession(m.config, params, m.normalizer, handler, logger)

	if err := params.Validate(); err != nil {
		return nil, s.reject(err)
	}
	if !m.config.HasDeepgramCredentials() {
		return nil, s.reject(stt.NewMissingCredentialsError())
	}

	s.setState(StateConnecting)
	language := params.Language
	if language == "" {
		language = m.config.DeepgramLanguage
	}
	opts := stt.Options{
		APIKey:         m.config.DeepgramAPIKey,
		URL:            m.config.DeepgramURL,
		Model:          m.config.DeepgramModel,
		Language:       language,
		Diarize:        params.Diarize,
		EndpointingMs:  m.config.DeepgramEndpointingMs,
		UtteranceEndMs: m.config.DeepgramUtteranceEndMs,
	}

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:       m.config.ReconnectMaxAttempts,
		InitialBackoff:    m.config.ReconnectBackoff(),
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	started := time.Now()
	var conn stt.Conn
	err := resilience.Retry(ctx, func(ctx context.Context, attempt int) error {
		c, err := m.dialer.Dial(ctx, opts)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, retryConfig, isRetryableDialError, &logger)
	if err != nil {
		var hs *stt.UpstreamHandshakeError
		if !errors.As(err, &hs) && !errors.Is(err, context.Canceled) {
			err = &stt.UpstreamTransportError{Err: err}
		}
		return nil, s.reject(err)
	}

	observability.SessionOpened(time.Since(started))
	s.start(conn)
	logger.Info().
		Str("session_id", s.ID()).
		Str("language", language).
		Dur("connect", time.Since(started)).
		Msg("Upstream session ready")
	return s, nil
}

func isRetryableDialError(err error) bool {
	var hs *stt.UpstreamHandshakeError
	if errors.As(err, &hs) {
		return false
	}
	return resilience.IsRetryableNetworkError(err)
}
