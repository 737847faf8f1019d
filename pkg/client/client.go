// Package client is the Go client for the brainstorm API. It covers
// the three progress transports: polling, SSE, and WebSocket. All
// three reconstruct full progress from any single event, so callers
// can switch transports freely.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

var (
	// ErrPollTimeout reports an exhausted polling budget. It is a
	// transport-level condition, distinct from a failed run.
	ErrPollTimeout = errors.New("polling budget exhausted")

	// ErrAlreadyRunning reports that another client started the run
	// first. Callers should switch to observing rather than treating
	// this as a failure.
	ErrAlreadyRunning = errors.New("discussion already running")
)

// Config controls transport behavior. Zero values fall back to the
// reference defaults.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logger.Logger

	// Polling transport
	PollInterval time.Duration // default 2s
	PollBudget   int           // default 60 attempts

	// SSE transport
	ConnectTimeout time.Duration // default 30s

	// SSE and WebSocket reconnects
	BackoffBase   time.Duration // default 1s
	BackoffFactor int           // default 2
	BackoffCap    time.Duration // default 30s
	MaxReconnects int           // default 5
}

// Client talks to one brainstorm API server.
type Client struct {
	cfg Config
}

// New creates a client, filling in defaults for unset Config fields.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 60
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	return &Client{cfg: cfg}
}

// StartDiscussion requests the asynchronous run. A 202 means the run
// was accepted; errors after acceptance surface only through the
// progress transports.
func (c *Client) StartDiscussion(ctx context.Context, id int64) (*model.StartDiscussionResponse, error) {
	url := fmt.Sprintf("%s/api/v1/discussions/%d/start", c.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return nil, err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, decodeError(resp)
	}

	var out model.StartDiscussionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode start response: %w", err)
	}
	return &out, nil
}

// GetDiscussion reads the persisted discussion record.
func (c *Client) GetDiscussion(ctx context.Context, id int64) (*model.Discussion, error) {
	url := fmt.Sprintf("%s/api/v1/discussions/%d", c.cfg.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out model.Discussion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode discussion: %w", err)
	}
	return &out, nil
}

// backoff returns the wait before reconnect attempt n (0-based),
// capped at BackoffCap.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= time.Duration(c.cfg.BackoffFactor)
		if d >= c.cfg.BackoffCap {
			return c.cfg.BackoffCap
		}
	}
	return d
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		if resp.StatusCode == http.StatusBadRequest && payload.Error == "discussion already running" {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
