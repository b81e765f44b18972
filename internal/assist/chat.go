// Package assist holds the collaborators the relay exposes over HTTP next to
// transcription: answer generation, resume text extraction and the company
// dataset.
package assist

import (
	"context"
	"errors"
	"strings"
)

// StreamDone terminates a streamed answer on the wire.
const StreamDone = "[DONE]"

// ErrChatNotConfigured is returned when no chat provider credentials exist.
var ErrChatNotConfigured = errors.New("chat provider not configured. Add OPENAI_API_KEY to your .env file")

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// AnswerRequest asks for an answer to an interview question.
type AnswerRequest struct {
	Question      string
	ResumeContext string
	Language      string
	History       []Turn
}

// Chat generates candidate answers.
type Chat interface {
	GenerateAnswer(ctx context.Context, req AnswerRequest) (string, error)
	// StreamAnswer calls onChunk for each piece of the answer as it arrives.
	StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string)) error
}

const systemPrompt = `You are an intelligent interview assistant helping a candidate answer interview questions.

Answer as the candidate, in first person, based on the candidate's resume and experience.
Keep answers natural, concise and professional: 2-6 sentences for most questions.
For technical questions give a clear explanation and format code in markdown code blocks.
If the resume does not cover the question, say so briefly and pivot to relevant experience.`

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"hi": "Hindi",
	"pt": "Portuguese",
	"ar": "Arabic",
	"ru": "Russian",
}

// LanguageName maps a language code to the name used in prompts. Unknown
// codes fall back to English.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return "English"
}
