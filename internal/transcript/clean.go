package transcript

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun     = regexp.MustCompile(`\s+`)
	repeatedPeriods   = regexp.MustCompile(`\.{2,}`)
	spaceBeforePunct  = regexp.MustCompile(`\s+([,.!?])`)
	sentenceTerminate = regexp.MustCompile(`[.!?]$`)
)

// CleanText trims, collapses whitespace and repeated periods, and removes
// spaces before punctuation.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = repeatedPeriods.ReplaceAllString(s, ".")
	return spaceBeforePunct.ReplaceAllString(s, "$1")
}

// minSentenceWords keeps abbreviations like "Dr." from ending a sentence.
const minSentenceWords = 5

func isSentenceComplete(text string) bool {
	text = strings.TrimSpace(text)
	return sentenceTerminate.MatchString(text) && len(strings.Fields(text)) >= minSentenceWords
}
