package transcript

import (
	"testing"

	"github.com/interviewmate/stt-relay/internal/stt"
)

func TestSpeakerMap_Label(t *testing.T) {
	m := NewSpeakerMap(map[string]string{"0": "Interviewer", "1": " Me "})

	tests := []struct {
		raw, want string
	}{
		{"0", "Interviewer"},
		{"1", "Me"},
		{"2", "Speaker 2"},
		{"me", "Me"},
		{"interviewer", "Interviewer"},
		{"", "Speaker"},
	}
	for _, tt := range tests {
		if got := m.Label(tt.raw); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSpeakerMap_SetBlankRemoves(t *testing.T) {
	m := NewSpeakerMap(nil)
	m.Set("me", "")
	if got := m.Label("me"); got != "Speaker me" {
		t.Errorf("Expected fallback label, got %q", got)
	}
}

func TestSpeakerKey(t *testing.T) {
	id := 3
	if got := SpeakerKey(stt.Fragment{SpeakerID: &id}); got != "3" {
		t.Errorf("Expected '3', got %q", got)
	}
	if got := SpeakerKey(stt.Fragment{ChannelLabel: "me"}); got != "me" {
		t.Errorf("Expected 'me', got %q", got)
	}
	if got := SpeakerKey(stt.Fragment{}); got != "" {
		t.Errorf("Expected empty key, got %q", got)
	}
}
