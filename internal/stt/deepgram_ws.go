package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/interviewmate/stt-relay/internal/resilience"
)

// DefaultDeepgramURL is the Deepgram live transcription endpoint.
const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

const closeFrameTimeout = time.Second

// WSDialer speaks the raw Deepgram live protocol over gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
}

// NewWSDialer returns a dialer with a bounded handshake timeout.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ListenURL builds the streaming URL with the relay's fixed transcription
// parameters.
func ListenURL(opts Options) (string, error) {
	base := opts.URL
	if base == "" {
		base = DefaultDeepgramURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}

	q := u.Query()
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("vad_events", "true")
	q.Set("filler_words", "true")
	if opts.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(opts.EndpointingMs))
	}
	if opts.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(opts.UtteranceEndMs))
	}
	if opts.Diarize {
		q.Set("diarize", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial implements Dialer. Handshake rejections come back as
// *UpstreamHandshakeError; other failures are marked retryable.
func (d *WSDialer) Dial(ctx context.Context, opts Options) (Conn, error) {
	target, err := ListenURL(opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+opts.APIKey)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				resp.Body.Close()
			}
			return nil, &UpstreamHandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewRetryableError(fmt.Errorf("dial deepgram: %w", err))
	}

	return &wsConn{conn: conn, closed: make(chan struct{})}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsConn) setWriteDeadline(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(dl)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
}

func (c *wsConn) WriteAudio(ctx context.Context, data []byte) error {
	c.setWriteDeadline(ctx)
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) WriteControl(ctx context.Context, ctrl Control) error {
	msg, err := json.Marshal(map[string]string{"type": string(ctrl)})
	if err != nil {
		return err
	}
	c.setWriteDeadline(ctx)
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil, ErrConnClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeFrameTimeout))
		err = c.conn.Close()
	})
	return err
}
