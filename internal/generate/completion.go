package generate

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

const completionModel = "gpt-4o-mini"

// CompletionStrategy produces persona contributions through the OpenAI
// chat completion API, one call per participant.
type CompletionStrategy struct {
	client *openai.Client
}

// NewCompletionStrategy creates the completion strategy. With an empty
// API key the strategy reports itself unavailable.
func NewCompletionStrategy(apiKey string) *CompletionStrategy {
	s := &CompletionStrategy{}
	if apiKey != "" {
		s.client = openai.NewClient(apiKey)
	}
	return s
}

// Name returns the strategy name.
func (s *CompletionStrategy) Name() string {
	return "completion"
}

// Available reports whether the OpenAI client is configured.
func (s *CompletionStrategy) Available() bool {
	return s.client != nil
}

// Generate produces one contribution per persona in roster order.
func (s *CompletionStrategy) Generate(ctx context.Context, req *Request) ([]model.DiscussionMessage, error) {
	var transcript []model.DiscussionMessage

	for _, persona := range req.Personas {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: completionModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You roleplay one participant in a themed brainstorm discussion. Stay in character and keep contributions to two or three sentences.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: personaPrompt(req, persona, transcript),
				},
			},
			MaxTokens:   512,
			Temperature: 0.8,
		})
		if err != nil {
			return nil, err
		}

		var content string
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}

		transcript = append(transcript, model.DiscussionMessage{
			Speaker:   persona.Name,
			Content:   strings.TrimSpace(content),
			Timestamp: time.Now().UTC(),
		})
	}

	return transcript, nil
}
