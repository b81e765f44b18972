package relay

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/events"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/session"
	"github.com/interviewmate/stt-relay/internal/transcript"
)

var upgrader = websocket.Upgrader{
	// The UI runs as a local desktop shell; origins are not a trust boundary here.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  8192,
	WriteBufferSize: 4096,
}

// UtterancePublisher receives every committed utterance of one connection.
type UtterancePublisher interface {
	PublishUtterance(ctx context.Context, u transcript.Utterance) error
	Close() error
}

// PublisherFactory builds the publisher for a new connection.
type PublisherFactory func(connectionID string, logger zerolog.Logger) UtterancePublisher

// Handler serves /ws/transcribe.
type Handler struct {
	config       *config.Config
	manager      *session.Manager
	newPublisher PublisherFactory
	logger       zerolog.Logger

	mu     sync.Mutex
	active map[*clientConn]struct{}
	wg     sync.WaitGroup
}

// NewHandler creates the relay handler. Utterances go to Kafka when enabled.
func NewHandler(cfg *config.Config, manager *session.Manager) *Handler {
	publisherConfig := events.ConfigFrom(cfg)
	return &Handler{
		config:  cfg,
		manager: manager,
		newPublisher: func(connectionID string, logger zerolog.Logger) UtterancePublisher {
			return events.New(publisherConfig, connectionID, logger)
		},
		logger: observability.WithComponent("relay"),
		active: make(map[*clientConn]struct{}),
	}
}

// WithPublisherFactory replaces how per-connection publishers are built.
func (h *Handler) WithPublisherFactory(f PublisherFactory) *Handler {
	h.newPublisher = f
	return h
}

// ServeHTTP upgrades the request and runs the connection until the client
// leaves or every session has ended.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := parseConnectRequest(r.URL.Query(), h.config.DeepgramLanguage)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	id := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(id).With().
		Str("component", "relay").
		Str("language", req.Language).
		Str("mode", req.Mode).
		Str("speaker", req.Speaker).
		Logger()

	c := newClientConn(id, ws, h.config, req, h.newPublisher(id, logger), logger)

	h.mu.Lock()
	h.active[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.active, c)
		h.mu.Unlock()
		h.wg.Done()
	}()

	c.run(h.manager)
}

// Shutdown disconnects every client and waits until their sessions are
// closed or ctx ends. Hijacked connections are not covered by
// http.Server.Shutdown.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.active {
		c.ws.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
