package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// StreamProgress follows the SSE transport, invoking sink for every
// progress event until the terminal one arrives. A dropped connection
// while the run may still be going is retried with bounded backoff;
// once a terminal event has been observed it never reconnects. A
// non-nil error from sink stops the stream.
func (c *Client) StreamProgress(ctx context.Context, id int64, sink func(model.ProgressEvent) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxReconnects; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.cfg.Logger.Debug("reconnecting SSE stream",
				zap.Int64("discussion_id", id),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		terminal, err := c.streamOnce(ctx, id, sink)
		if terminal || err == nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("stream did not complete after %d reconnects: %w", c.cfg.MaxReconnects, lastErr)
}

// streamOnce opens one SSE connection and relays events. The bool
// reports whether a terminal event was delivered; reconnecting past
// that point would be wrong even on an error return.
func (c *Client) streamOnce(ctx context.Context, id int64, sink func(model.ProgressEvent) error) (bool, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/discussions/%d/stream", c.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The connect timeout bounds only establishing the stream; the
	// stream itself may stay open far longer than any connect budget.
	connectTimer := time.AfterFunc(c.cfg.ConnectTimeout, cancel)
	resp, err := c.cfg.HTTPClient.Do(req)
	connectTimer.Stop()
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if eventName != "progress" {
				continue
			}
			var ev model.ProgressEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				return false, fmt.Errorf("failed to decode progress event: %w", err)
			}
			if err := sink(ev); err != nil {
				return false, err
			}
			if ev.Completed {
				return true, nil
			}

		case line == "":
			eventName = ""
		}
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, fmt.Errorf("stream closed before terminal event")
}
