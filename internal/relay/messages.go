package relay

import (
	"time"

	"github.com/interviewmate/stt-relay/internal/stt"
	"github.com/interviewmate/stt-relay/internal/transcript"
)

// Provider is reported on status messages.
const Provider = "deepgram"

// Relay -> client message types
const (
	TypeStatus        = "status"
	TypeTranscript    = "transcript"
	TypeSpeechStarted = "speech_started"
	TypeUtteranceEnd  = "utterance_end"
	TypeUtterance     = "utterance"
	TypeInterim       = "interim"
	TypeHistory       = "history"
	TypeError         = "error"
)

// Client -> relay control types
const (
	ControlKeepAlive = "keepalive"
	ControlHistory   = "history"
	ControlClose     = "close"
)

// ControlMessage is a client text frame.
type ControlMessage struct {
	Type string `json:"type"`
}

// StatusMessage reports session connectivity.
type StatusMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message"` // connected or disconnected
	Provider string `json:"provider"`
	Speaker  string `json:"speaker,omitempty"`
	Diarize  bool   `json:"diarize"`
	Channel  string `json:"channel,omitempty"`
}

// TranscriptMessage carries one normalized fragment. start and duration are
// in seconds.
type TranscriptMessage struct {
	Type        string  `json:"type"`
	Transcript  string  `json:"transcript"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Confidence  float64 `json:"confidence"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Speaker     string  `json:"speaker,omitempty"`
	SpeakerID   *int    `json:"speaker_id,omitempty"`
	Channel     string  `json:"channel,omitempty"`
}

// SignalMessage is speech_started or utterance_end.
type SignalMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// UtteranceMessage carries a committed utterance.
type UtteranceMessage struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Channel    string  `json:"channel,omitempty"`
	Timestamp  string  `json:"timestamp"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

// HistoryMessage answers a history control message with the connection's
// committed utterances, oldest first.
type HistoryMessage struct {
	Type       string             `json:"type"`
	Utterances []UtteranceMessage `json:"utterances"`
}

// InterimMessage carries live preview text. Empty text clears the preview.
type InterimMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ErrorMessage is the only shape in which failures reach the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Channel string `json:"channel,omitempty"`
}

func newStatus(message, channel, speaker string, diarize bool) StatusMessage {
	return StatusMessage{
		Type:     TypeStatus,
		Message:  message,
		Provider: Provider,
		Speaker:  speaker,
		Diarize:  diarize,
		Channel:  channel,
	}
}

func newTranscript(channel string, f *stt.Fragment) TranscriptMessage {
	return TranscriptMessage{
		Type:        TypeTranscript,
		Transcript:  f.Text,
		IsFinal:     f.IsFinal,
		SpeechFinal: f.SpeechFinal,
		Confidence:  f.Confidence,
		Start:       float64(f.StartOffsetMs) / 1000,
		Duration:    float64(f.DurationMs) / 1000,
		Speaker:     f.ChannelLabel,
		SpeakerID:   f.SpeakerID,
		Channel:     channel,
	}
}

func newUtterance(u transcript.Utterance) UtteranceMessage {
	return UtteranceMessage{
		Type:       TypeUtterance,
		ID:         u.ID,
		Text:       u.Text,
		Speaker:    u.Speaker,
		Channel:    u.Channel,
		Timestamp:  u.Timestamp.Format(time.RFC3339Nano),
		IsFinal:    u.IsFinal,
		Confidence: u.Confidence,
	}
}

func newHistory(history []transcript.Utterance) HistoryMessage {
	msg := HistoryMessage{Type: TypeHistory, Utterances: make([]UtteranceMessage, 0, len(history))}
	for _, u := range history {
		msg.Utterances = append(msg.Utterances, newUtterance(u))
	}
	return msg
}

// newError translates a session or provider failure. Raw provider payloads
// never reach the client; only the error text and its code do.
func newError(channel string, err error) ErrorMessage {
	code := stt.ErrorCode(err)
	message := err.Error()
	switch code {
	case stt.CodeUpstreamTransport:
		message = "Connection to the speech service was lost. Start a new transcription to continue."
	case stt.CodeInternal:
		message = "Transcription relay error. Start a new transcription to continue."
	}
	return ErrorMessage{
		Type:    TypeError,
		Message: message,
		Code:    code,
		Channel: channel,
	}
}
