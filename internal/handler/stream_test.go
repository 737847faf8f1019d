package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

func TestStreamDeliversProgressToTerminal(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)

	var events []model.ProgressEvent
	err = c.StreamProgress(ctx, id, func(ev model.ProgressEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	// Progress never rolls back and the stream ends on the terminal
	// event with the full message list.
	last := -1
	for _, ev := range events {
		require.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
	}
	final := events[len(events)-1]
	require.True(t, final.Completed)
	require.Equal(t, 100, final.Progress)
	require.Empty(t, final.Error)
	require.Len(t, final.Messages, 3)
}

func TestStreamAfterCompletionDeliversOneTerminalEvent(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	_, err = c.PollUntilDone(ctx, id)
	require.NoError(t, err)

	// Force the registry entry out so the stream must fall back to the
	// persisted record, as a client past the grace period would.
	s.waitSnapshotTerminal(t, id)
	s.registry.Retire(id)

	var events []model.ProgressEvent
	err = c.StreamProgress(ctx, id, func(ev model.ProgressEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1, "late attach gets exactly one terminal event")
	require.True(t, events[0].Completed)
	require.Len(t, events[0].Messages, 3)
}

// brokenWriter fails every write, the way a closed client connection
// does.
type brokenWriter struct {
	http.ResponseWriter
}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (brokenWriter) Flush()                    {}

func TestSendSSEEventPropagatesWriteFailure(t *testing.T) {
	rec := httptest.NewRecorder()

	err := sendSSEEvent(rec, rec, "progress", model.ProgressEvent{Message: "ok"})
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), "event: progress\n")

	bw := brokenWriter{ResponseWriter: httptest.NewRecorder()}
	err = sendSSEEvent(bw, bw, "progress", model.ProgressEvent{Message: "ok"})
	require.Error(t, err, "a failed write surfaces so stream loops can exit")
}

func TestStreamUnknownDiscussion(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/discussions/99/stream")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStreamUnregister(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	_, err = c.PollUntilDone(ctx, id)
	require.NoError(t, err)
	s.waitSnapshotTerminal(t, id)

	resp := s.do(t, http.MethodDelete, "/api/v1/discussions/1/stream")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, ok := s.registry.Current(id)
	require.False(t, ok, "terminal snapshot retired by the cleanup hint")
}
