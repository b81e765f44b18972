package transcript

import (
	"strings"

	"github.com/google/uuid"
)

// MergeSentences joins consecutive utterances into sentences. A sentence ends
// when the speaker changes, or when it ends in . ! or ? and has at least five
// words. Each sentence keeps the timestamp of its first utterance.
func MergeSentences(utterances []Utterance) []Utterance {
	var (
		sentences []Utterance
		current   []string
		first     Utterance
		speaker   string
		open      bool
	)

	emit := func() {
		text := strings.TrimSpace(strings.Join(current, " "))
		if text != "" {
			sentences = append(sentences, Utterance{
				ID:         uuid.New().String(),
				Text:       text,
				Speaker:    speaker,
				Channel:    first.Channel,
				Timestamp:  first.Timestamp,
				IsFinal:    true,
				Confidence: first.Confidence,
			})
		}
		current = current[:0]
		open = false
	}

	for _, u := range utterances {
		if open && u.Speaker != speaker {
			emit()
		}
		if !open {
			first = u
			speaker = u.Speaker
			open = true
		}
		if t := strings.TrimSpace(u.Text); t != "" {
			current = append(current, t)
		}
		if isSentenceComplete(strings.Join(current, " ")) {
			emit()
		}
	}
	if open {
		emit()
	}
	return sentences
}
