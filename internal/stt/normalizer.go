package stt

import (
	"encoding/json"
	"math"
	"sort"
)

// Deepgram live message types
const (
	deepgramResults       = "Results"
	deepgramSpeechStarted = "SpeechStarted"
	deepgramUtteranceEnd  = "UtteranceEnd"
)

type deepgramEnvelope struct {
	Type string `json:"type"`
}

type deepgramResult struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`
}

type deepgramAlternative struct {
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	Words      []deepgramWord `json:"words"`
}

type deepgramWord struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker *int    `json:"speaker"`
}

// DeepgramNormalizer interprets Deepgram live transcription messages.
type DeepgramNormalizer struct{}

// NewDeepgramNormalizer returns the Deepgram normalizer.
func NewDeepgramNormalizer() *DeepgramNormalizer {
	return &DeepgramNormalizer{}
}

// Normalize implements Normalizer.
func (DeepgramNormalizer) Normalize(payload []byte, diarize bool) (Event, error) {
	var env deepgramEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, &MalformedPayloadError{Size: len(payload), Err: err}
	}

	switch env.Type {
	case deepgramSpeechStarted:
		return Event{Kind: EventSpeechStarted}, nil
	case deepgramUtteranceEnd:
		return Event{Kind: EventUtteranceEnd}, nil
	case deepgramResults:
	default:
		// Metadata and anything newer than this code
		return Event{Kind: EventNone}, nil
	}

	var msg deepgramResult
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Event{}, &MalformedPayloadError{Size: len(payload), Err: err}
	}
	if len(msg.Channel.Alternatives) == 0 {
		return Event{Kind: EventNone}, nil
	}

	alt := msg.Channel.Alternatives[0]
	start, duration := msg.Start, msg.Duration
	if len(alt.Words) > 0 && duration == 0 {
		// Fallback: derive timing from words if not provided
		start = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - start
	}

	frag := &Fragment{
		Text:          alt.Transcript,
		IsFinal:       msg.IsFinal,
		SpeechFinal:   msg.SpeechFinal,
		Confidence:    clampConfidence(alt.Confidence),
		StartOffsetMs: secondsToMs(start),
		DurationMs:    secondsToMs(duration),
	}
	if diarize {
		frag.SpeakerID = dominantSpeaker(alt.Words)
	}

	return Event{Kind: EventTranscript, Fragment: frag}, nil
}

func dominantSpeaker(words []deepgramWord) *int {
	tags := make([]int, 0, len(words))
	for _, w := range words {
		if w.Speaker != nil {
			tags = append(tags, *w.Speaker)
		}
	}
	id, ok := MajoritySpeaker(tags)
	if !ok {
		return nil
	}
	return &id
}

// MajoritySpeaker returns the speaker id carried by the most words. Ties go
// to the lowest id. ok is false when tags is empty.
func MajoritySpeaker(tags []int) (id int, ok bool) {
	counts := make(map[int]int)
	for _, t := range tags {
		counts[t]++
	}
	if len(counts) == 0 {
		return 0, false
	}

	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] > counts[best] {
			best = id
		}
	}
	return best, true
}

func secondsToMs(s float64) int64 {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return int64(math.Round(s * 1000))
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
