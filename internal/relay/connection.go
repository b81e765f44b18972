package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/audio"
	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/session"
	"github.com/interviewmate/stt-relay/internal/stt"
	"github.com/interviewmate/stt-relay/internal/transcript"
)

const (
	outboundBuffer = 256
	writeTimeout   = 10 * time.Second

	// maxClientFrameBytes bounds one client frame. Recorder chunks are a few
	// KB; a larger frame closes the connection with 1009.
	maxClientFrameBytes = 1 << 20
)

// clientConn is one client connection and everything it owns: its sessions,
// assembler, speaker map and publisher. Nothing here is shared with other
// connections.
type clientConn struct {
	id        string
	ws        *websocket.Conn
	request   connectRequest
	logger    zerolog.Logger
	metrics   *observability.Metrics
	assembler *transcript.Assembler
	publisher UtterancePublisher

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session.Session // by channel id
	ended    map[string]bool             // session ids that already reported OnClosed

	out        chan any
	stop       chan struct{}
	stopOnce   sync.Once
	writerDone chan struct{}
	readerDone chan struct{}
}

func newClientConn(id string, ws *websocket.Conn, cfg *config.Config, req connectRequest, publisher UtterancePublisher, logger zerolog.Logger) *clientConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &clientConn{
		id:         id,
		ws:         ws,
		request:    req,
		logger:     logger,
		metrics:    observability.NewConnectionMetrics(id),
		publisher:  publisher,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*session.Session),
		ended:      make(map[string]bool),
		out:        make(chan any, outboundBuffer),
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	c.assembler = transcript.NewAssembler(transcript.NewSpeakerMap(req.Labels), c, cfg.HistoryLimit)
	return c
}

func (c *clientConn) run(manager *session.Manager) {
	c.metrics.RecordConnectionStart()
	c.logger.Info().Msg("Client connected")
	go c.writeLoop()
	defer c.shutdown()

	// The reader runs while sessions are still connecting, so a client that
	// leaves cancels dials in flight. Frames routed before registration find
	// no session and are dropped.
	openCtx, cancelOpen := context.WithCancel(c.ctx)
	defer cancelOpen()
	go func() {
		defer close(c.readerDone)
		defer cancelOpen()
		c.readLoop()
	}()

	if err := c.openSessions(openCtx, manager); err != nil {
		return
	}
	<-c.readerDone
}

// openSessions opens every session the request needs. On any failure one
// error message is sent and already opened sessions are closed. Nothing is
// sent once the client has gone.
func (c *clientConn) openSessions(ctx context.Context, manager *session.Manager) error {
	params, err := c.request.sessions()
	if err != nil {
		c.reject("", err)
		return err
	}

	opened := make([]*session.Session, 0, len(params))
	closeOpened := func() {
		for _, o := range opened {
			o.Close()
		}
	}
	for _, p := range params {
		s, err := manager.Open(ctx, p, c)
		if err != nil {
			closeOpened()
			if ctx.Err() != nil {
				c.logger.Info().Str("channel", p.ChannelID).Msg("Client left while connecting")
				return ctx.Err()
			}
			c.reject(p.ChannelID, err)
			return err
		}
		c.register(s)
		opened = append(opened, s)
	}
	if err := ctx.Err(); err != nil {
		closeOpened()
		return err
	}

	for _, s := range opened {
		if s.Start() {
			p := s.Params()
			c.send(newStatus("connected", p.ChannelID, p.SpeakerLabel, p.Diarize), true)
		}
	}
	return nil
}

func (c *clientConn) reject(channel string, err error) {
	c.logger.Warn().Err(err).Str("channel", channel).Msg("Transcription request rejected")
	c.metrics.RecordError(stt.ErrorCode(err), "session")
	c.send(newError(channel, err), true)
	c.requestClose()
}

func (c *clientConn) register(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended[s.ID()] {
		return
	}
	c.sessions[s.Params().ChannelID] = s
}

func (c *clientConn) session(channel string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[channel]
}

func (c *clientConn) allSessions() []*session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

func (c *clientConn) readLoop() {
	c.ws.SetReadLimit(maxClientFrameBytes)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.logger.Warn().Int("limit", maxClientFrameBytes).Msg("Client frame too large")
				c.metrics.RecordError("frame_too_large", "client")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			c.routeAudio(data)
		case websocket.TextMessage:
			if !c.handleControl(data) {
				return
			}
		}
	}
}

func (c *clientConn) routeAudio(data []byte) {
	if len(data) == 0 {
		return
	}
	c.metrics.RecordAudioBytes("in", int64(len(data)))

	channel := primaryChannel
	if c.request.dual() {
		idx := int(data[0])
		if idx >= len(dualChannels) {
			c.logger.Debug().Int("prefix", idx).Msg("Dropping audio frame for unknown channel")
			return
		}
		channel = dualChannels[idx]
		data = data[1:]
	} else if c.request.Speaker != "" {
		channel = c.request.Speaker
	}

	s := c.session(channel)
	if s == nil || len(data) == 0 {
		return
	}
	s.ForwardAudio(audio.Chunk{Channel: channel, Data: data, ReceivedAt: time.Now()})
}

// handleControl returns false when the client asked to close.
func (c *clientConn) handleControl(data []byte) bool {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring unparseable control message")
		return true
	}

	switch strings.ToLower(msg.Type) {
	case ControlKeepAlive:
		for _, s := range c.allSessions() {
			s.KeepAlive()
		}
	case ControlHistory:
		c.send(newHistory(c.assembler.History()), true)
	case ControlClose:
		c.logger.Info().Msg("Client requested close")
		return false
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown control message")
	}
	return true
}

// shutdown closes every session before the connection goes away, so no
// session outlives its client.
func (c *clientConn) shutdown() {
	for _, s := range c.allSessions() {
		s.Close()
	}
	c.assembler.FlushAll()
	c.cancel()

	c.requestClose()
	<-c.writerDone
	<-c.readerDone

	if err := c.publisher.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing publisher")
	}
	c.metrics.RecordConnectionEnd()
	c.logger.Info().Msg("Client disconnected")
}

// send queues a message for the writer. Critical messages (status, error,
// utterance) wait for room; previews are dropped when the client lags.
func (c *clientConn) send(msg any, critical bool) {
	if critical {
		select {
		case c.out <- msg:
		case <-c.writerDone:
		}
		return
	}
	select {
	case c.out <- msg:
	case <-c.writerDone:
	default:
		c.logger.Warn().Msg("Outbound channel full, dropping message")
	}
}

// requestClose asks the writer to flush queued messages and close the socket.
func (c *clientConn) requestClose() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *clientConn) writeLoop() {
	defer close(c.writerDone)
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.out:
			if !c.write(msg) {
				return
			}
		case <-c.stop:
			for {
				select {
				case msg := <-c.out:
					if !c.write(msg) {
						return
					}
				default:
					c.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					return
				}
			}
		}
	}
}

func (c *clientConn) write(msg any) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Msg("Client write failed")
		return false
	}
	return true
}

// OnEvent implements session.Handler.
func (c *clientConn) OnEvent(s *session.Session, ev stt.Event) {
	channel := s.Params().ChannelID

	switch ev.Kind {
	case stt.EventTranscript:
		f := ev.Fragment
		c.metrics.RecordFragment(f.IsFinal)
		if strings.TrimSpace(f.Text) != "" {
			c.send(newTranscript(channel, f), f.IsFinal)
		}
		c.assembler.Add(channel, *f)

	case stt.EventSpeechStarted:
		c.send(SignalMessage{Type: TypeSpeechStarted, Channel: channel}, false)

	case stt.EventUtteranceEnd:
		c.send(SignalMessage{Type: TypeUtteranceEnd, Channel: channel}, false)
		c.assembler.UtteranceEnd(channel)
	}
}

// OnClosed implements session.Handler. A failure sends exactly one error
// before the disconnected status.
func (c *clientConn) OnClosed(s *session.Session, err error) {
	p := s.Params()
	c.assembler.Flush(p.ChannelID)

	if err != nil {
		c.metrics.RecordError(stt.ErrorCode(err), "session")
		c.send(newError(p.ChannelID, err), true)
	}
	c.send(newStatus("disconnected", p.ChannelID, p.SpeakerLabel, p.Diarize), true)

	c.mu.Lock()
	c.ended[s.ID()] = true
	if c.sessions[p.ChannelID] == s {
		delete(c.sessions, p.ChannelID)
	}
	remaining := len(c.sessions)
	c.mu.Unlock()

	if remaining == 0 {
		c.requestClose()
	}
}

// OnPreview implements transcript.Sink.
func (c *clientConn) OnPreview(p transcript.Preview) {
	c.send(InterimMessage{Type: TypeInterim, Channel: p.Channel, Speaker: p.Speaker, Text: p.Text}, false)
}

// OnUtterance implements transcript.Sink.
func (c *clientConn) OnUtterance(u transcript.Utterance) {
	c.metrics.RecordUtterance(u.Trigger)
	c.send(newUtterance(u), true)
	if err := c.publisher.PublishUtterance(c.ctx, u); err != nil {
		c.logger.Warn().Err(err).Str("utterance_id", u.ID).Msg("Failed to publish utterance")
	}
}
