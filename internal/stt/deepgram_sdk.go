package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// sdkPayloadBuffer bounds how far the SDK's read goroutine may run ahead of
// the session reader before it blocks.
const sdkPayloadBuffer = 256

// SDKDialer opens upstream connections through the Deepgram Go SDK. The SDK
// delivers typed callbacks; they are re-encoded to the wire JSON so the same
// Normalizer serves both transports.
type SDKDialer struct{}

// NewSDKDialer returns a Deepgram SDK dialer.
func NewSDKDialer() *SDKDialer {
	return &SDKDialer{}
}

// Dial implements Dialer.
func (d *SDKDialer) Dial(ctx context.Context, opts Options) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          opts.Model,
		Language:       opts.Language,
		Punctuate:      true,
		InterimResults: true,
		SmartFormat:    true,
		VadEvents:      true,
		Diarize:        opts.Diarize,
	}
	if opts.EndpointingMs > 0 {
		tOptions.Endpointing = strconv.Itoa(opts.EndpointingMs)
	}
	if opts.UtteranceEndMs > 0 {
		tOptions.UtteranceEndMs = strconv.Itoa(opts.UtteranceEndMs)
	}

	// The SDK keeps its context for the connection lifetime, so it must not be
	// the caller's dial context.
	connCtx, cancel := context.WithCancel(context.Background())
	c := &sdkConn{
		payloads:     make(chan sdkPayload, sdkPayloadBuffer),
		closed:       make(chan struct{}),
		remoteClosed: make(chan struct{}),
		cancel:       cancel,
	}

	callback := &sdkCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		conn:                   c,
	}

	client, err := listenClient.NewWSUsingCallback(
		connCtx,
		opts.APIKey,
		&interfaces.ClientOptions{EnableKeepAlive: true},
		tOptions,
		callback,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	c.client = client

	if !client.Connect() {
		cancel()
		return nil, &UpstreamHandshakeError{Err: fmt.Errorf("deepgram sdk could not connect")}
	}
	return c, nil
}

type sdkPayload struct {
	data []byte
	err  error
}

type sdkConn struct {
	client *listenClient.WSCallback
	cancel context.CancelFunc

	payloads     chan sdkPayload
	closed       chan struct{}
	remoteClosed chan struct{}

	closeOnce  sync.Once
	remoteOnce sync.Once
	finishOnce sync.Once
}

func (c *sdkConn) push(p sdkPayload) {
	select {
	case c.payloads <- p:
	case <-c.closed:
	}
}

func (c *sdkConn) markRemoteClosed() {
	c.remoteOnce.Do(func() { close(c.remoteClosed) })
}

func (c *sdkConn) finish() {
	c.finishOnce.Do(func() { c.client.Finish() })
}

func (c *sdkConn) WriteAudio(ctx context.Context, data []byte) error {
	_, err := c.client.Write(data)
	return err
}

// WriteControl maps CloseStream onto the SDK's Finish. KeepAlive frames are
// sent by the SDK itself (EnableKeepAlive).
func (c *sdkConn) WriteControl(ctx context.Context, ctrl Control) error {
	if ctrl == ControlCloseStream {
		c.finish()
		c.markRemoteClosed()
	}
	return nil
}

func (c *sdkConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.payloads:
		return p.data, p.err
	case <-c.remoteClosed:
		select {
		case p := <-c.payloads:
			return p.data, p.err
		default:
			return nil, io.EOF
		}
	case <-c.closed:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *sdkConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.finish()
		c.cancel()
	})
	return nil
}

// sdkCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need to customize
type sdkCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	conn *sdkConn
}

func (h *sdkCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	if message == nil {
		return nil
	}
	msg := *message
	msg.Type = deepgramResults
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	h.conn.push(sdkPayload{data: data})
	return nil
}

func (h *sdkCallbackHandler) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	h.conn.push(sdkPayload{data: []byte(`{"type":"SpeechStarted"}`)})
	return nil
}

func (h *sdkCallbackHandler) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	h.conn.push(sdkPayload{data: []byte(`{"type":"UtteranceEnd"}`)})
	return nil
}

func (h *sdkCallbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	h.conn.markRemoteClosed()
	return nil
}

func (h *sdkCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	h.conn.push(sdkPayload{err: fmt.Errorf("deepgram error: %+v", er)})
	return nil
}
