package stt

import (
	"errors"
	"testing"
)

func TestNormalize_InterimResult(t *testing.T) {
	payload := []byte(`{
		"type": "Results",
		"channel_index": [0, 1],
		"duration": 1.25,
		"start": 0.5,
		"is_final": false,
		"speech_final": false,
		"channel": {"alternatives": [{"transcript": "I think", "confidence": 0.91, "words": []}]},
		"metadata": {"request_id": "abc", "model_info": {"name": "nova-3"}}
	}`)

	ev, err := NewDeepgramNormalizer().Normalize(payload, false)
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if ev.Kind != EventTranscript || ev.Fragment == nil {
		t.Fatalf("Expected transcript event, got %+v", ev)
	}
	f := ev.Fragment
	if f.Text != "I think" || f.IsFinal || f.SpeechFinal {
		t.Errorf("Unexpected fragment: %+v", f)
	}
	if f.Confidence != 0.91 {
		t.Errorf("Expected confidence 0.91, got %v", f.Confidence)
	}
	if f.StartOffsetMs != 500 || f.DurationMs != 1250 {
		t.Errorf("Expected 500ms/1250ms, got %d/%d", f.StartOffsetMs, f.DurationMs)
	}
	if f.SpeakerID != nil {
		t.Errorf("Expected no speaker without diarization, got %d", *f.SpeakerID)
	}
}

func TestNormalize_MissingOptionalFields(t *testing.T) {
	payload := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"yes"}]}}`)

	ev, err := NewDeepgramNormalizer().Normalize(payload, true)
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	f := ev.Fragment
	if f.Confidence != 0 || f.StartOffsetMs != 0 || f.DurationMs != 0 {
		t.Errorf("Expected zero defaults, got %+v", f)
	}
	if f.SpeakerID != nil {
		t.Error("Expected absent speaker when words carry no tags")
	}
	if !f.IsFinal {
		t.Error("Expected final fragment")
	}
}

func TestNormalize_TimingFromWords(t *testing.T) {
	payload := []byte(`{"type":"Results","channel":{"alternatives":[{"transcript":"hello there",
		"words":[{"word":"hello","start":1.0,"end":1.4},{"word":"there","start":1.5,"end":2.0}]}]}}`)

	ev, err := NewDeepgramNormalizer().Normalize(payload, false)
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if ev.Fragment.StartOffsetMs != 1000 || ev.Fragment.DurationMs != 1000 {
		t.Errorf("Expected 1000ms/1000ms, got %d/%d", ev.Fragment.StartOffsetMs, ev.Fragment.DurationMs)
	}
}

func TestNormalize_MajorityVoteDiarization(t *testing.T) {
	payload := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"so what do you",
		"words":[
			{"word":"so","speaker":1},
			{"word":"what","speaker":0},
			{"word":"do","speaker":0},
			{"word":"you","speaker":0}
		]}]}}`)

	ev, err := NewDeepgramNormalizer().Normalize(payload, true)
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if ev.Fragment.SpeakerID == nil || *ev.Fragment.SpeakerID != 0 {
		t.Errorf("Expected speaker 0, got %v", ev.Fragment.SpeakerID)
	}
}

func TestMajoritySpeaker(t *testing.T) {
	tests := []struct {
		name   string
		tags   []int
		want   int
		wantOK bool
	}{
		{"three to one", []int{0, 0, 0, 1}, 0, true},
		{"first word is minority", []int{1, 0, 0}, 0, true},
		{"tie goes to lowest", []int{2, 1, 2, 1}, 1, true},
		{"single", []int{3}, 3, true},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MajoritySpeaker(tt.tags)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MajoritySpeaker(%v) = %d, %v; want %d, %v", tt.tags, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalize_SignalEvents(t *testing.T) {
	n := NewDeepgramNormalizer()

	ev, err := n.Normalize([]byte(`{"type":"SpeechStarted","channel":[0],"timestamp":1.2}`), false)
	if err != nil || ev.Kind != EventSpeechStarted || ev.Fragment != nil {
		t.Errorf("Expected speech_started, got %+v (%v)", ev, err)
	}

	ev, err = n.Normalize([]byte(`{"type":"UtteranceEnd","channel":[0,1],"last_word_end":2.1}`), false)
	if err != nil || ev.Kind != EventUtteranceEnd || ev.Fragment != nil {
		t.Errorf("Expected utterance_end, got %+v (%v)", ev, err)
	}
}

func TestNormalize_IgnoredPayloads(t *testing.T) {
	n := NewDeepgramNormalizer()
	payloads := []string{
		`{"type":"Metadata","request_id":"x","duration":3.0}`,
		`{"type":"SomethingNew","extra":true}`,
		`{"type":"Results","channel":{"alternatives":[]}}`,
	}
	for _, p := range payloads {
		ev, err := n.Normalize([]byte(p), false)
		if err != nil {
			t.Errorf("Normalize(%s) failed: %v", p, err)
		}
		if ev.Kind != EventNone {
			t.Errorf("Expected EventNone for %s, got %v", p, ev.Kind)
		}
	}
}

func TestNormalize_Malformed(t *testing.T) {
	n := NewDeepgramNormalizer()

	for _, p := range []string{`not json`, `{"type":"Results","channel":"oops"}`} {
		_, err := n.Normalize([]byte(p), false)
		var malformed *MalformedPayloadError
		if !errors.As(err, &malformed) {
			t.Errorf("Expected MalformedPayloadError for %q, got %v", p, err)
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{NewMissingCredentialsError(), CodeConfiguration},
		{&UnsupportedModeError{Reason: "x"}, CodeUnsupportedMode},
		{&UpstreamHandshakeError{StatusCode: 401}, CodeUpstreamHandshake},
		{&UpstreamTransportError{Err: errors.New("reset")}, CodeUpstreamTransport},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.code {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}

func TestUpstreamHandshakeError_Message(t *testing.T) {
	err := &UpstreamHandshakeError{StatusCode: 401}
	if got := err.Error(); got != "speech service rejected the connection (HTTP 401): check DEEPGRAM_API_KEY" {
		t.Errorf("Unexpected message: %s", got)
	}
}
