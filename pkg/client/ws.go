package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// WatchProgress follows the WebSocket transport, invoking sink for
// every pushed event until the terminal one. Unexpected closes are
// retried with exponential backoff up to MaxReconnects; a close after
// the terminal event is expected and never retried. A non-nil error
// from sink stops the watch.
func (c *Client) WatchProgress(ctx context.Context, id int64, sink func(model.ProgressEvent) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxReconnects; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.cfg.Logger.Debug("reconnecting WebSocket",
				zap.Int64("discussion_id", id),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		terminal, err := c.watchOnce(ctx, id, sink)
		if terminal || err == nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("watch did not complete after %d reconnects: %w", c.cfg.MaxReconnects, lastErr)
}

func (c *Client) watchOnce(ctx context.Context, id int64, sink func(model.ProgressEvent) error) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/ws/discussions/%d", wsBaseURL(c.cfg.BaseURL), id)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return false, decodeError(resp)
		}
		return false, err
	}
	defer conn.Close()

	// Cancellation unblocks the blocking read below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev model.ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return false, err
		}
		if err := sink(ev); err != nil {
			return false, err
		}
		if ev.Completed {
			return true, nil
		}
	}
}

// wsBaseURL rewrites an http(s) base URL to its ws(s) counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
