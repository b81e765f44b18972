package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/audio"
	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/observability"
	"github.com/interviewmate/stt-relay/internal/stt"
)

// Session is one upstream streaming connection for one audio channel.
type Session struct {
	id         string
	params     Params
	normalizer stt.Normalizer
	handler    Handler
	logger     zerolog.Logger

	keepAliveInterval time.Duration
	closeTimeout      time.Duration

	mu    sync.Mutex
	state State

	conn         stt.Conn
	queue        *audio.ChunkQueue
	lastActivity atomic.Int64 // unix nanos of the last upstream write
	writeErr     atomic.Pointer[error]

	ctx    context.Context
	cancel context.CancelFunc

	keepAliveReq chan struct{}
	stopWrite    chan struct{}
	readerDone   chan struct{}
	writerDone   chan struct{}
	closedOnce   sync.Once
}

func newSession(cfg *config.Config, params Params, normalizer stt.Normalizer, handler Handler, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Session{
		id:                id,
		params:            params,
		normalizer:        normalizer,
		handler:           handler,
		logger:            logger.With().Str("session_id", id).Logger(),
		keepAliveInterval: cfg.KeepAliveInterval(),
		closeTimeout:      cfg.CloseTimeout(),
		state:             StateInitializing,
		queue:             audio.NewChunkQueue(cfg.AudioQueueChunks),
		ctx:               ctx,
		cancel:            cancel,
		keepAliveReq:      make(chan struct{}, 1),
		stopWrite:         make(chan struct{}),
		readerDone:        make(chan struct{}),
		writerDone:        make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Params returns the parameters the session was opened with.
func (s *Session) Params() Params { return s.params }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when audio or a keepalive was last written upstream.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// transition moves from any of the given states to next.
func (s *Session) transition(next State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = next
			return true
		}
	}
	return false
}

// reject fails a session that never reached READY.
func (s *Session) reject(err error) error {
	s.setState(StateFailed)
	s.cancel()
	s.queue.Close()
	observability.SessionRejected()
	s.logger.Warn().Err(err).Str("code", stt.ErrorCode(err)).Msg("Session rejected")
	return err
}

func (s *Session) start(conn stt.Conn) {
	s.conn = conn
	s.touch()
	s.setState(StateReady)
	go s.readLoop()
	go s.writeLoop()
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Start moves a READY session to STREAMING so audio is accepted.
func (s *Session) Start() bool {
	return s.transition(StateStreaming, StateReady)
}

// ForwardAudio queues one chunk for the upstream without blocking. It returns
// false when the chunk was dropped because the session is not streaming.
// When the queue is full the oldest queued chunk is evicted.
func (s *Session) ForwardAudio(chunk audio.Chunk) bool {
	if s.State() != StateStreaming {
		observability.AudioChunkDropped("not_streaming")
		return false
	}
	accepted, evicted := s.queue.Push(chunk)
	if evicted {
		observability.AudioChunkDropped("overflow")
		s.logger.Debug().Msg("Audio queue full, dropped oldest chunk")
	}
	if !accepted {
		observability.AudioChunkDropped("not_streaming")
	}
	return accepted
}

// KeepAlive asks the writer to send a KeepAlive frame now.
func (s *Session) KeepAlive() {
	if !s.State().IsOpen() {
		return
	}
	select {
	case s.keepAliveReq <- struct{}{}:
	default:
	}
}

// Close ends the session gracefully: queued audio is flushed, CloseStream is
// sent, and the upstream gets CloseTimeout to finish before the socket is
// force closed. Calling Close on a closing or terminal session does nothing.
func (s *Session) Close() error {
	if !s.transition(StateClosing, StateReady, StateStreaming) {
		return nil
	}
	s.logger.Debug().Msg("Closing session")

	s.queue.Close()
	close(s.stopWrite)

	timer := time.NewTimer(s.closeTimeout)
	select {
	case <-s.readerDone:
	case <-timer.C:
		s.logger.Warn().Dur("timeout", s.closeTimeout).Msg("Upstream did not close in time, forcing close")
	}
	timer.Stop()

	s.conn.Close()
	<-s.readerDone
	<-s.writerDone

	s.setState(StateClosed)
	s.release(nil)
	return nil
}

// release runs once per opened session, after the reader has exited.
func (s *Session) release(err error) {
	s.closedOnce.Do(func() {
		s.cancel()
		s.queue.Close()
		s.queue.Clear()
		s.conn.Close()

		outcome := "closed"
		if err != nil {
			outcome = "failed"
			s.logger.Error().Err(err).Str("code", stt.ErrorCode(err)).Msg("Session failed")
		} else {
			s.logger.Info().Msg("Session closed")
		}
		observability.SessionEnded(outcome)

		if s.handler != nil {
			s.handler.OnClosed(s, err)
		}
	})
}

func (s *Session) readLoop() {
	defer close(s.readerDone)

	for {
		payload, err := s.conn.Read(s.ctx)
		if err != nil {
			s.readEnded(err)
			return
		}

		ev, err := s.normalizer.Normalize(payload, s.params.Diarize)
		if err != nil {
			observability.MalformedPayload()
			s.logger.Warn().Err(err).Msg("Dropping upstream payload")
			continue
		}
		if ev.Kind == stt.EventNone {
			continue
		}
		if ev.Fragment != nil && s.params.SpeakerLabel != "" {
			ev.Fragment.ChannelLabel = s.params.SpeakerLabel
			ev.Fragment.SpeakerID = nil
		}
		if s.handler != nil {
			s.handler.OnEvent(s, ev)
		}
	}
}

// readEnded decides the terminal state when the upstream stops delivering.
// During CLOSING, Close owns the transition.
func (s *Session) readEnded(err error) {
	var terminalErr error
	next := StateClosed
	if werr := s.writeErr.Load(); werr != nil {
		next = StateFailed
		terminalErr = &stt.UpstreamTransportError{Err: *werr}
	} else if !errors.Is(err, io.EOF) {
		next = StateFailed
		terminalErr = &stt.UpstreamTransportError{Err: err}
	}

	if !s.transition(next, StateReady, StateStreaming) {
		return
	}
	s.cancel()
	s.conn.Close()
	<-s.writerDone
	s.release(terminalErr)
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)

	timer := time.NewTimer(s.keepAliveInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.queue.Ready():
			if err := s.drainQueue(s.ctx); err != nil {
				s.writeFailed(err)
				return
			}
			timer.Reset(s.keepAliveInterval)

		case <-s.keepAliveReq:
			if err := s.sendKeepAlive(); err != nil {
				s.writeFailed(err)
				return
			}
			timer.Reset(s.keepAliveInterval)

		case <-timer.C:
			if s.State().IsOpen() && time.Since(s.LastActivity()) >= s.keepAliveInterval {
				if err := s.sendKeepAlive(); err != nil {
					s.writeFailed(err)
					return
				}
			}
			timer.Reset(s.keepAliveInterval)

		case <-s.stopWrite:
			ctx, cancel := context.WithTimeout(s.ctx, s.closeTimeout)
			if err := s.drainQueue(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("Dropping queued audio on close")
			}
			if err := s.conn.WriteControl(ctx, stt.ControlCloseStream); err != nil {
				s.logger.Debug().Err(err).Msg("CloseStream not delivered")
			}
			cancel()
			return

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) drainQueue(ctx context.Context) error {
	for {
		chunk, ok := s.queue.Pop()
		if !ok {
			return nil
		}
		if err := s.conn.WriteAudio(ctx, chunk.Data); err != nil {
			return err
		}
		observability.AudioBytesOut(len(chunk.Data))
		s.touch()
	}
}

func (s *Session) sendKeepAlive() error {
	if err := s.conn.WriteControl(s.ctx, stt.ControlKeepAlive); err != nil {
		return err
	}
	observability.KeepAliveSent()
	s.touch()
	return nil
}

// writeFailed records the error and closes the socket so the reader ends and
// reports the failure.
func (s *Session) writeFailed(err error) {
	if s.State() == StateClosing {
		return
	}
	s.writeErr.Store(&err)
	s.logger.Warn().Err(err).Msg("Upstream write failed")
	s.conn.Close()
}
