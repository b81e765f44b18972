package stt

import (
	"context"
	"errors"
)

// Fragment is a provider-neutral transcript fragment. At most one of
// SpeakerID and ChannelLabel is set.
type Fragment struct {
	// Text is the transcribed text, possibly empty
	Text string

	// IsFinal indicates the provider will not revise this fragment
	IsFinal bool

	// SpeechFinal indicates end-of-utterance silence was detected
	SpeechFinal bool

	// Confidence is the confidence score (0.0 to 1.0), 0 when absent
	Confidence float64

	StartOffsetMs int64
	DurationMs    int64

	// SpeakerID is the dominant diarized speaker, nil without diarization
	SpeakerID *int

	// ChannelLabel is the explicit dual-channel label ("me" or "interviewer")
	ChannelLabel string
}

// EventKind tells what a normalized upstream payload carried.
type EventKind int

const (
	EventNone EventKind = iota
	EventTranscript
	EventSpeechStarted
	EventUtteranceEnd
)

func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventSpeechStarted:
		return "speech_started"
	case EventUtteranceEnd:
		return "utterance_end"
	default:
		return "none"
	}
}

// Event is one normalized upstream payload. Fragment is set only for
// EventTranscript.
type Event struct {
	Kind     EventKind
	Fragment *Fragment
}

// Normalizer maps one provider payload to an Event. Payloads that carry no
// transcript or signal yield EventNone. Unparseable payloads return a
// *MalformedPayloadError.
type Normalizer interface {
	Normalize(payload []byte, diarize bool) (Event, error)
}

// Control is an upstream control frame.
type Control string

const (
	ControlKeepAlive   Control = "KeepAlive"
	ControlCloseStream Control = "CloseStream"
)

// Options describes one upstream streaming connection.
type Options struct {
	APIKey         string
	URL            string
	Model          string
	Language       string
	Diarize        bool
	EndpointingMs  int
	UtteranceEndMs int
}

// Conn is one upstream streaming connection. Writes must come from a single
// goroutine; Close may be called from any goroutine.
type Conn interface {
	// WriteAudio sends one binary audio frame
	WriteAudio(ctx context.Context, data []byte) error

	// WriteControl sends a control frame
	WriteControl(ctx context.Context, c Control) error

	// Read blocks for the next provider payload. It returns io.EOF once the
	// provider closes the stream normally.
	Read(ctx context.Context) ([]byte, error)

	// Close tears down the socket. Safe to call more than once.
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Conn, error)
}

// ErrConnClosed is returned by Read after the local side closed the connection.
var ErrConnClosed = errors.New("stt: connection closed")
