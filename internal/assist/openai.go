package assist

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	answerTemperature = 0.7
	answerMaxTokens   = 500
)

// OpenAIChat implements Chat with the OpenAI chat completions API.
type OpenAIChat struct {
	client oai.Client
	model  string
}

// NewOpenAIChat creates the chat collaborator. baseURL may be empty.
func NewOpenAIChat(apiKey, baseURL, model string) (*OpenAIChat, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrChatNotConfigured
	}
	if model == "" {
		return nil, fmt.Errorf("assist: model must not be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIChat{client: oai.NewClient(opts...), model: model}, nil
}

// GenerateAnswer implements Chat.
func (c *OpenAIChat) GenerateAnswer(ctx context.Context, req AnswerRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", fmt.Errorf("assist: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("assist: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// StreamAnswer implements Chat.
func (c *OpenAIChat) StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string)) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			onChunk(text)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("assist: stream answer: %w", err)
	}
	return nil
}

func (c *OpenAIChat) params(req AnswerRequest) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            buildMessages(req),
		Temperature:         param.NewOpt(answerTemperature),
		MaxCompletionTokens: param.NewOpt(int64(answerMaxTokens)),
	}
}

func buildMessages(req AnswerRequest) []oai.ChatCompletionMessageParamUnion {
	language := LanguageName(req.Language)

	resume := req.ResumeContext
	if strings.TrimSpace(resume) == "" {
		resume = "No resume uploaded yet"
	}

	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(systemPrompt),
		oai.SystemMessage("Candidate's Resume Context:\n" + resume),
		oai.SystemMessage(fmt.Sprintf("IMPORTANT: Respond in %s. The candidate needs the answer in %s.", language, language)),
	}
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		switch turn.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(turn.Content))
		case "user":
			messages = append(messages, oai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, oai.UserMessage(fmt.Sprintf(
		"Interview Question: %s\n\nProvide a natural, first-person answer as if you are the candidate speaking, in %s.",
		req.Question, language)))
	return messages
}
