package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/config"
	"github.com/interviewmate/stt-relay/internal/stt"
)

// fakeConn is an in-memory upstream. Payloads pushed with deliver are
// returned by Read; when ackClose is set a CloseStream ends the stream.
type fakeConn struct {
	ackClose bool

	mu       sync.Mutex
	audio    [][]byte
	controls []stt.Control
	writeErr error

	incoming  chan []byte
	readErr   chan error
	eof       chan struct{}
	eofOnce   sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn(ackClose bool) *fakeConn {
	return &fakeConn{
		ackClose: ackClose,
		incoming: make(chan []byte, 64),
		readErr:  make(chan error, 1),
		eof:      make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) deliver(payload string) { c.incoming <- []byte(payload) }
func (c *fakeConn) fail(err error)         { c.readErr <- err }
func (c *fakeConn) endStream()             { c.eofOnce.Do(func() { close(c.eof) }) }

func (c *fakeConn) WriteAudio(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.audio = append(c.audio, data)
	return nil
}

func (c *fakeConn) WriteControl(ctx context.Context, ctrl stt.Control) error {
	c.mu.Lock()
	c.controls = append(c.controls, ctrl)
	err := c.writeErr
	c.mu.Unlock()
	if ctrl == stt.ControlCloseStream && c.ackClose {
		c.endStream()
	}
	return err
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.incoming:
		return p, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.eof:
		return nil, io.EOF
	case <-c.closed:
		return nil, stt.ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) countControl(ctrl stt.Control) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.controls {
		if got == ctrl {
			n++
		}
	}
	return n
}

func (c *fakeConn) audioFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.audio...)
}

// fakeDialer hands out conn, or returns errs in order first.
type fakeDialer struct {
	conn  *fakeConn
	errs  []error
	dials atomic.Int32
	last  stt.Options
	mu    sync.Mutex
}

func (d *fakeDialer) Dial(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	n := int(d.dials.Add(1))
	d.mu.Lock()
	d.last = opts
	d.mu.Unlock()
	if n <= len(d.errs) {
		return nil, d.errs[n-1]
	}
	return d.conn, nil
}

type closedCall struct {
	session *Session
	err     error
}

type recordingHandler struct {
	mu     sync.Mutex
	events []stt.Event
	closed chan closedCall
	calls  atomic.Int32
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan closedCall, 4)}
}

func (h *recordingHandler) OnEvent(s *Session, ev stt.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) OnClosed(s *Session, err error) {
	h.calls.Add(1)
	h.closed <- closedCall{session: s, err: err}
}

func (h *recordingHandler) snapshot() []stt.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]stt.Event(nil), h.events...)
}

func (h *recordingHandler) waitClosed() (closedCall, error) {
	select {
	case c := <-h.closed:
		return c, nil
	case <-time.After(3 * time.Second):
		return closedCall{}, errors.New("OnClosed was not called")
	}
}

func testConfig() *config.Config {
	return &config.Config{
		DeepgramAPIKey:         "test-key",
		DeepgramURL:            "wss://example.invalid/v1/listen",
		DeepgramModel:          "nova-3",
		DeepgramLanguage:       "en",
		DeepgramEndpointingMs:  300,
		DeepgramUtteranceEndMs: 1000,
		KeepAliveIntervalMs:    60000,
		CloseTimeoutMs:         500,
		AudioQueueChunks:       8,
		ReconnectMaxAttempts:   3,
		ReconnectBackoffMs:     1,
	}
}

func newTestManager(cfg *config.Config, dialer stt.Dialer) *Manager {
	return NewManager(cfg, dialer, stt.NewDeepgramNormalizer(), zerolog.Nop())
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
