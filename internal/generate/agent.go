package generate

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

const agentModel = "claude-3-5-haiku-20241022"

// AgentStrategy drives a turn-by-turn persona simulation through the
// Anthropic API: each participant speaks once, in roster order, seeing
// the transcript accumulated so far.
type AgentStrategy struct {
	client *anthropic.Client
}

// NewAgentStrategy creates the agent strategy. With an empty API key the
// strategy reports itself unavailable and is skipped by the chain.
func NewAgentStrategy(apiKey string) *AgentStrategy {
	s := &AgentStrategy{}
	if apiKey != "" {
		s.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	}
	return s
}

// Name returns the strategy name.
func (s *AgentStrategy) Name() string {
	return "agent"
}

// Available reports whether the Anthropic client is configured.
func (s *AgentStrategy) Available() bool {
	return s.client != nil
}

// Generate produces one contribution per persona. Any API error aborts
// the whole attempt; the chain must never surface partial output.
func (s *AgentStrategy) Generate(ctx context.Context, req *Request) ([]model.DiscussionMessage, error) {
	var transcript []model.DiscussionMessage

	for _, persona := range req.Personas {
		prompt := personaPrompt(req, persona, transcript)

		resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.F(agentModel),
			MaxTokens: anthropic.F(int64(1024)),
			Messages: anthropic.F([]anthropic.MessageParam{
				{
					Role: anthropic.F(anthropic.MessageParamRoleUser),
					Content: anthropic.F([]anthropic.ContentBlockParamUnion{
						anthropic.TextBlockParam{
							Type: anthropic.F(anthropic.TextBlockParamTypeText),
							Text: anthropic.F(prompt),
						},
					}),
				},
			}),
		})
		if err != nil {
			return nil, err
		}

		var content string
		for _, block := range resp.Content {
			if block.Type == anthropic.ContentBlockTypeText {
				content += block.Text
			}
		}

		transcript = append(transcript, model.DiscussionMessage{
			Speaker:   persona.Name,
			Content:   strings.TrimSpace(content),
			Timestamp: time.Now().UTC(),
		})
	}

	return transcript, nil
}
