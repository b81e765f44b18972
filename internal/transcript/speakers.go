package transcript

import (
	"strconv"
	"strings"
	"sync"

	"github.com/interviewmate/stt-relay/internal/stt"
)

// Default display labels for the dual-channel raw ids.
var defaultSpeakerLabels = map[string]string{
	"me":          "Me",
	"interviewer": "Interviewer",
}

// SpeakerMap maps raw speaker identities ("0", "1", "me", "interviewer") to
// display labels. It is presentation only and never part of utterance identity.
type SpeakerMap struct {
	mu     sync.RWMutex
	labels map[string]string
}

// NewSpeakerMap returns a map seeded with the dual-channel defaults and the
// given overrides.
func NewSpeakerMap(overrides map[string]string) *SpeakerMap {
	m := &SpeakerMap{labels: make(map[string]string, len(defaultSpeakerLabels)+len(overrides))}
	for k, v := range defaultSpeakerLabels {
		m.labels[k] = v
	}
	for k, v := range overrides {
		m.Set(k, v)
	}
	return m
}

// Set assigns a display label. Blank labels remove the override.
func (m *SpeakerMap) Set(raw, label string) {
	raw = strings.TrimSpace(raw)
	label = strings.TrimSpace(label)
	m.mu.Lock()
	defer m.mu.Unlock()
	if label == "" {
		delete(m.labels, raw)
		return
	}
	m.labels[raw] = label
}

// Label resolves a raw id. Unknown ids get "Speaker <id>"; an empty id gets
// "Speaker".
func (m *SpeakerMap) Label(raw string) string {
	m.mu.RLock()
	label, ok := m.labels[raw]
	m.mu.RUnlock()
	if ok {
		return label
	}
	if raw == "" {
		return "Speaker"
	}
	return "Speaker " + raw
}

// SpeakerKey returns the raw identity carried by a fragment.
func SpeakerKey(f stt.Fragment) string {
	if f.ChannelLabel != "" {
		return f.ChannelLabel
	}
	if f.SpeakerID != nil {
		return strconv.Itoa(*f.SpeakerID)
	}
	return ""
}
