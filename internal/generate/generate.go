// Package generate produces simulated multi-persona discussions. It
// tries an ordered list of strategies (agent simulation, direct
// completion API, deterministic mock) behind one capability-tested
// interface; the mock strategy never fails, so generation always
// terminates.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

// Request describes one discussion to generate.
type Request struct {
	Theme       string
	Description string
	WorldName   string
	WorldBack   string
	Personas    []model.Character
}

// Strategy is one candidate implementation for producing discussion
// messages. Available reports whether the strategy's preconditions hold
// (credentials present, client initialized); an unavailable strategy is
// skipped without counting as a failure.
type Strategy interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, req *Request) ([]model.DiscussionMessage, error)
}

// GenerationError is the terminal failure after every strategy has been
// exhausted.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Reason
}

// IsGenerationError reports whether err is a terminal generation failure.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// Generator runs the strategy chain with a per-strategy timeout.
type Generator struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *logger.Logger
}

// NewGenerator creates a generator over the given strategies, tried in
// order. Timeout bounds each individual strategy attempt.
func NewGenerator(strategies []Strategy, timeout time.Duration, log *logger.Logger) *Generator {
	return &Generator{
		strategies: strategies,
		timeout:    timeout,
		logger:     log,
	}
}

// DefaultStrategies builds the production strategy order: Anthropic
// agent simulation, OpenAI completion, deterministic mock.
func DefaultStrategies(anthropicKey, openaiKey string) []Strategy {
	return []Strategy{
		NewAgentStrategy(anthropicKey),
		NewCompletionStrategy(openaiKey),
		NewMockStrategy(),
	}
}

// Generate produces a fully-formed ordered message list for the request,
// prefixed with the synthesized system opener. It returns the winning
// strategy's name alongside the messages. Partial output from a failed
// strategy never reaches the caller.
func (g *Generator) Generate(ctx context.Context, req *Request) ([]model.DiscussionMessage, string, error) {
	if len(req.Personas) == 0 {
		return nil, "", &GenerationError{Reason: "no participant personas"}
	}

	var lastErr error
	for _, strat := range g.strategies {
		if !strat.Available() {
			g.logger.Debug("generation strategy unavailable, skipping",
				zap.String("strategy", strat.Name()))
			metrics.RecordStrategyAttempt(strat.Name(), "skipped")
			continue
		}

		// The opener is stamped before the strategy runs so the
		// combined list keeps non-decreasing timestamps.
		opener := OpeningMessage(req.Theme)

		attemptCtx := ctx
		var cancel context.CancelFunc
		if g.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		msgs, err := strat.Generate(attemptCtx, req)
		if cancel != nil {
			cancel()
		}

		var out []model.DiscussionMessage
		if err == nil {
			if len(msgs) == 0 {
				err = errors.New("strategy returned no messages")
			} else {
				out = make([]model.DiscussionMessage, 0, len(msgs)+1)
				out = append(out, opener)
				out = append(out, msgs...)
				err = validate(out)
			}
		}
		if err != nil {
			lastErr = err
			g.logger.Warn("generation strategy failed, trying next",
				zap.String("strategy", strat.Name()),
				zap.Error(err))
			metrics.RecordStrategyAttempt(strat.Name(), "failure")
			continue
		}

		metrics.RecordStrategyAttempt(strat.Name(), "success")
		return out, strat.Name(), nil
	}

	reason := "all generation strategies exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("%s: %v", reason, lastErr)
	}
	return nil, "", &GenerationError{Reason: reason}
}

// validate enforces basic well-formedness of a strategy's output: a
// non-empty list with non-decreasing timestamps.
func validate(msgs []model.DiscussionMessage) error {
	if len(msgs) == 0 {
		return errors.New("strategy returned no messages")
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			return fmt.Errorf("message %d timestamp precedes message %d", i, i-1)
		}
	}
	return nil
}
