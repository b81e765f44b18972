package transcript

import (
	"testing"
	"time"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello   world  ", "hello world"},
		{"wait.. what...", "wait. what."},
		{"yes , sure !", "yes, sure!"},
		{"line\none\ttwo", "line one two"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeSentences(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	in := []Utterance{
		{Text: "So tell me", Speaker: "Interviewer", Timestamp: t0},
		{Text: "about a project you led.", Speaker: "Interviewer", Timestamp: t0.Add(time.Second)},
		{Text: "Sure.", Speaker: "Me", Timestamp: t0.Add(2 * time.Second)},
		{Text: "I rebuilt our billing pipeline", Speaker: "Me", Timestamp: t0.Add(3 * time.Second)},
		{Text: "Great", Speaker: "Interviewer", Timestamp: t0.Add(4 * time.Second)},
	}

	out := MergeSentences(in)

	want := []struct{ text, speaker string }{
		{"So tell me about a project you led.", "Interviewer"},
		{"Sure. I rebuilt our billing pipeline", "Me"},
		{"Great", "Interviewer"},
	}
	if len(out) != len(want) {
		t.Fatalf("Expected %d sentences, got %d: %+v", len(want), len(out), out)
	}
	for i, w := range want {
		if out[i].Text != w.text || out[i].Speaker != w.speaker {
			t.Errorf("Sentence %d: expected %q by %s, got %q by %s", i, w.text, w.speaker, out[i].Text, out[i].Speaker)
		}
	}
	if !out[1].Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("Expected sentence to keep its first timestamp, got %v", out[1].Timestamp)
	}
}

func TestMergeSentences_ShortSentenceDoesNotBreak(t *testing.T) {
	out := MergeSentences([]Utterance{
		{Text: "Dr.", Speaker: "Me"},
		{Text: "Smith joined us last spring.", Speaker: "Me"},
	})
	if len(out) != 1 || out[0].Text != "Dr. Smith joined us last spring." {
		t.Errorf("Expected one merged sentence, got %+v", out)
	}
}

func TestMergeSentences_Empty(t *testing.T) {
	if out := MergeSentences(nil); len(out) != 0 {
		t.Errorf("Expected no sentences, got %+v", out)
	}
}
