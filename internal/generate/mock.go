package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// MockStrategy produces a deterministic scripted exchange so the
// pipeline always terminates even with no AI backend configured. It is
// always available and never fails.
type MockStrategy struct{}

// NewMockStrategy creates the mock strategy.
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{}
}

// Name returns the strategy name.
func (s *MockStrategy) Name() string {
	return "mock"
}

// Available always reports true; the mock guarantees availability.
func (s *MockStrategy) Available() bool {
	return true
}

// Generate emits one scripted contribution per persona with strictly
// increasing timestamps.
func (s *MockStrategy) Generate(ctx context.Context, req *Request) ([]model.DiscussionMessage, error) {
	base := time.Now().UTC()
	msgs := make([]model.DiscussionMessage, 0, len(req.Personas))
	for i, persona := range req.Personas {
		msgs = append(msgs, model.DiscussionMessage{
			Speaker: persona.Name,
			Content: fmt.Sprintf(
				"From %s's point of view on %q: drawing on a %s nature, I would approach this from my own experience.",
				persona.Name, req.Theme, persona.Personality),
			Timestamp: base.Add(time.Duration(i+1) * time.Second),
		})
	}
	return msgs, nil
}
