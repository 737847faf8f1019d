package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// PollUntilDone reads the discussion on the configured interval until
// its status turns terminal. When the attempt budget runs out it
// returns ErrPollTimeout so callers can tell "could not observe" apart
// from "the run failed".
func (c *Client) PollUntilDone(ctx context.Context, id int64) (*model.Discussion, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.cfg.PollBudget; attempt++ {
		discussion, err := c.GetDiscussion(ctx, id)
		if err != nil {
			return nil, err
		}
		if discussion.Status.Terminal() {
			return discussion, nil
		}

		c.cfg.Logger.Debug("discussion still in progress",
			zap.Int64("discussion_id", id),
			zap.String("status", string(discussion.Status)),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, ErrPollTimeout
}
