package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/interviewmate/stt-relay/internal/stt"
)

// Commit triggers
const (
	TriggerFinal        = "final"
	TriggerUtteranceEnd = "utterance_end"
	TriggerFlush        = "flush"
)

// Utterance is a committed, speaker-attributed transcript entry. It is never
// modified after it is emitted.
type Utterance struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker"`
	Channel    string    `json:"channel,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsFinal    bool      `json:"isFinal"`
	Confidence float64   `json:"confidence"`
	Trigger    string    `json:"-"`
}

// Preview is the live, not yet committed text for one channel. An empty Text
// means the channel's preview was cleared.
type Preview struct {
	Channel    string
	Speaker    string
	Text       string
	Confidence float64
}

// Sink receives assembler output. Calls are serialized across all channels,
// so their order is the local arrival order.
type Sink interface {
	OnPreview(p Preview)
	OnUtterance(u Utterance)
}

type interimBuffer struct {
	text       string
	confidence float64
	speakerKey string
}

// Assembler turns fragment streams from one or more channels into
// utterances. Each channel has its own interim buffer.
type Assembler struct {
	mu       sync.Mutex
	speakers *SpeakerMap
	sink     Sink
	buffers  map[string]*interimBuffer
	history  []Utterance
	limit    int
	now      func() time.Time
}

// NewAssembler creates an assembler. historyLimit bounds History; zero or
// negative keeps no history.
func NewAssembler(speakers *SpeakerMap, sink Sink, historyLimit int) *Assembler {
	if speakers == nil {
		speakers = NewSpeakerMap(nil)
	}
	return &Assembler{
		speakers: speakers,
		sink:     sink,
		buffers:  make(map[string]*interimBuffer),
		limit:    historyLimit,
		now:      time.Now,
	}
}

// Add feeds one fragment for a channel.
func (a *Assembler) Add(channel string, f stt.Fragment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := SpeakerKey(f)

	if !f.IsFinal && !f.SpeechFinal {
		// Interims re-transcribe the whole pending span, so they replace.
		a.buffers[channel] = &interimBuffer{text: f.Text, confidence: f.Confidence, speakerKey: key}
		a.preview(channel, key, strings.TrimSpace(f.Text), f.Confidence)
		return
	}

	text := CleanText(f.Text)
	if text == "" {
		// An empty final keeps the pending interim. An empty speech_final
		// still ends the utterance, so the interim commits.
		if f.SpeechFinal {
			a.flushLocked(channel, TriggerUtteranceEnd)
		}
		return
	}
	if a.clear(channel) {
		a.preview(channel, key, "", 0)
	}
	a.commit(channel, key, text, f.Confidence, TriggerFinal)
}

// UtteranceEnd commits a channel's pending interim text, if any.
func (a *Assembler) UtteranceEnd(channel string) {
	a.flush(channel, TriggerUtteranceEnd)
}

// Flush commits a channel's pending interim text as a best-effort final
// utterance. Used when the channel closes.
func (a *Assembler) Flush(channel string) {
	a.flush(channel, TriggerFlush)
}

// FlushAll flushes every channel in no particular order.
func (a *Assembler) FlushAll() {
	a.mu.Lock()
	channels := make([]string, 0, len(a.buffers))
	for ch := range a.buffers {
		channels = append(channels, ch)
	}
	a.mu.Unlock()

	for _, ch := range channels {
		a.Flush(ch)
	}
}

func (a *Assembler) flush(channel, trigger string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked(channel, trigger)
}

func (a *Assembler) flushLocked(channel, trigger string) {
	buf, ok := a.buffers[channel]
	if !ok {
		return
	}
	delete(a.buffers, channel)

	text := CleanText(buf.text)
	if text == "" {
		return
	}
	a.preview(channel, buf.speakerKey, "", 0)
	a.commit(channel, buf.speakerKey, text, buf.confidence, trigger)
}

// Pending returns the interim text buffered for a channel.
func (a *Assembler) Pending(channel string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok := a.buffers[channel]; ok {
		return buf.text
	}
	return ""
}

// History returns committed utterances in arrival order, oldest first.
func (a *Assembler) History() []Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Utterance, len(a.history))
	copy(out, a.history)
	return out
}

// clear drops the channel's buffer and reports whether it held text.
func (a *Assembler) clear(channel string) bool {
	buf, ok := a.buffers[channel]
	if !ok {
		return false
	}
	delete(a.buffers, channel)
	return strings.TrimSpace(buf.text) != ""
}

func (a *Assembler) preview(channel, key, text string, confidence float64) {
	if a.sink == nil {
		return
	}
	a.sink.OnPreview(Preview{
		Channel:    channel,
		Speaker:    a.speakers.Label(key),
		Text:       text,
		Confidence: confidence,
	})
}

func (a *Assembler) commit(channel, key, text string, confidence float64, trigger string) {
	u := Utterance{
		ID:         uuid.New().String(),
		Text:       text,
		Speaker:    a.speakers.Label(key),
		Channel:    channel,
		Timestamp:  a.now().UTC(),
		IsFinal:    true,
		Confidence: confidence,
		Trigger:    trigger,
	}

	if a.limit > 0 {
		a.history = append(a.history, u)
		if over := len(a.history) - a.limit; over > 0 {
			a.history = append(a.history[:0:0], a.history[over:]...)
		}
	}
	if a.sink != nil {
		a.sink.OnUtterance(u)
	}
}
