package handler

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/engine"
	"github.com/persona-worlds/brainstorm-api/internal/generate"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

func TestWatchDeliversProgressToTerminal(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)

	var events []model.ProgressEvent
	err = c.WatchProgress(ctx, id, func(ev model.ProgressEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	final := events[len(events)-1]
	require.True(t, final.Completed)
	require.Equal(t, 100, final.Progress)
	require.Len(t, final.Messages, 3)
}

func TestWatchStartsPendingDiscussion(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	// No explicit start call: connecting to a pending discussion kicks
	// off the run.
	var final model.ProgressEvent
	err := c.WatchProgress(ctx, id, func(ev model.ProgressEvent) error {
		final = ev
		return nil
	})
	require.NoError(t, err)
	require.True(t, final.Completed)
	require.Empty(t, final.Error)

	d, err := s.store.GetDiscussion(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, d.Status)
}

func TestWatchAfterCompletionDeliversOneTerminalEvent(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	_, err = c.PollUntilDone(ctx, id)
	require.NoError(t, err)
	s.waitSnapshotTerminal(t, id)
	s.registry.Retire(id)

	var events []model.ProgressEvent
	err = c.WatchProgress(ctx, id, func(ev model.ProgressEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Completed)
	require.Len(t, events[0].Messages, 3)
}

// staleReadStore serves a stale running copy on the first discussion
// read and delegates afterwards, modeling a record that went terminal
// between two reads.
type staleReadStore struct {
	store.Store
	reads atomic.Int32
}

func (s *staleReadStore) GetDiscussion(ctx context.Context, id int64) (*model.Discussion, error) {
	d, err := s.Store.GetDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.reads.Add(1) == 1 {
		stale := *d
		stale.Status = model.StatusRunning
		stale.Result = nil
		return &stale, nil
	}
	return d, nil
}

func TestWatchFallbackReflectsLatestPersistedState(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	world := &model.World{Name: "Aquila"}
	require.NoError(t, st.CreateWorld(ctx, world))
	d := &model.Discussion{Theme: "water rights", WorldID: world.ID}
	require.NoError(t, st.CreateDiscussion(ctx, d))
	require.NoError(t, st.ClaimRun(ctx, d.ID))
	require.NoError(t, st.FinishRun(ctx, d.ID, model.StatusCompleted, &model.DiscussionResult{
		DiscussionID: d.ID,
		Status:       model.StatusCompleted,
		Messages: []model.DiscussionMessage{
			{Speaker: model.SpeakerSystem, Content: "done", Timestamp: time.Now().UTC()},
		},
	}))

	log := logger.NewNop()
	reg := progress.NewRegistry(time.Minute, log)
	t.Cleanup(reg.Close)
	gen := generate.NewGenerator(generate.DefaultStrategies("", ""), time.Second, log)
	eng := engine.New(st, reg, gen, 0, log)
	t.Cleanup(eng.Close)

	stale := &staleReadStore{Store: st}
	h := NewWSHandler(stale, reg, eng, log)

	r := chi.NewRouter()
	r.Get("/api/v1/ws/discussions/{id}", h.Discussion)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		fmt.Sprintf("/api/v1/ws/discussions/%d", d.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The stale first read says running, but the registry has no entry;
	// the single fallback event must come from a fresh read.
	var ev model.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.True(t, ev.Completed)
	require.Equal(t, 100, ev.Progress)
	require.Len(t, ev.Messages, 1)
	require.GreaterOrEqual(t, stale.reads.Load(), int32(2))
}

func TestWatchUnknownDiscussion(t *testing.T) {
	s := newTestServer(t)
	c := s.apiClient()

	var final model.ProgressEvent
	err := c.WatchProgress(context.Background(), 99, func(ev model.ProgressEvent) error {
		final = ev
		return nil
	})
	require.NoError(t, err)
	require.True(t, final.Completed)
	require.Contains(t, final.Error, "not found")
}
