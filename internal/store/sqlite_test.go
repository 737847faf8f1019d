package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedWorld(t *testing.T, st *SQLiteStore) *model.World {
	t.Helper()
	w := &model.World{Name: "Aquila", Description: "desert trade world", Background: "post-collapse"}
	require.NoError(t, st.CreateWorld(context.Background(), w))
	return w
}

func seedDiscussion(t *testing.T, st *SQLiteStore, worldID int64) *model.Discussion {
	t.Helper()
	d := &model.Discussion{Theme: "water rights", WorldID: worldID}
	require.NoError(t, st.CreateDiscussion(context.Background(), d))
	return d
}

func TestWorldCRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	require.Greater(t, w.ID, int64(0))

	got, err := st.GetWorld(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, "Aquila", got.Name)
	require.Nil(t, got.UpdatedAt)

	updated, err := st.UpdateWorld(ctx, w.ID, &model.UpdateWorldRequest{Description: "lush now"})
	require.NoError(t, err)
	require.Equal(t, "lush now", updated.Description)
	require.Equal(t, "Aquila", updated.Name, "unset fields keep their value")
	require.NotNil(t, updated.UpdatedAt)

	require.NoError(t, st.DeleteWorld(ctx, w.ID))
	_, err = st.GetWorld(ctx, w.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, st.DeleteWorld(ctx, w.ID), ErrNotFound)
}

func TestCharacterWorldFilterAndCascade(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w1 := seedWorld(t, st)
	w2 := &model.World{Name: "Boreal"}
	require.NoError(t, st.CreateWorld(ctx, w2))

	for _, c := range []*model.Character{
		{Name: "Mira", WorldID: w1.ID},
		{Name: "Oren", WorldID: w1.ID},
		{Name: "Tully", WorldID: w2.ID},
	} {
		require.NoError(t, st.CreateCharacter(ctx, c))
	}

	all, err := st.ListCharacters(ctx, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	filtered, err := st.ListCharacters(ctx, w1.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, "Mira", filtered[0].Name)

	// Deleting a world cascades to its characters.
	require.NoError(t, st.DeleteWorld(ctx, w1.ID))
	remaining, err := st.ListCharacters(ctx, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "Tully", remaining[0].Name)
}

func TestDiscussionLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	d := seedDiscussion(t, st, w.ID)
	require.Equal(t, model.StatusPending, d.Status)

	require.NoError(t, st.ClaimRun(ctx, d.ID))

	got, err := st.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, got.Status)

	// A running discussion cannot be claimed again.
	require.ErrorIs(t, st.ClaimRun(ctx, d.ID), ErrNotClaimable)

	result := &model.DiscussionResult{
		DiscussionID: d.ID,
		Theme:        d.Theme,
		World:        w.Name,
		Participants: []string{"Mira", "Oren"},
		Status:       model.StatusFailed,
		Error:        "generation failed",
	}
	require.NoError(t, st.FinishRun(ctx, d.ID, model.StatusFailed, result))

	// A failed discussion is claimable again (retry).
	require.NoError(t, st.ClaimRun(ctx, d.ID))
	require.NoError(t, st.FinishRun(ctx, d.ID, model.StatusCompleted, nil))

	// A completed discussion is terminal for the engine.
	require.ErrorIs(t, st.ClaimRun(ctx, d.ID), ErrNotClaimable)

	require.ErrorIs(t, st.ClaimRun(ctx, 9999), ErrNotFound)
}

func TestClaimRunSingleWinner(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	d := seedDiscussion(t, st, w.ID)

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.ClaimRun(ctx, d.ID) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	require.Len(t, wins, 1, "exactly one concurrent claim may succeed")
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	d := seedDiscussion(t, st, w.ID)
	require.NoError(t, st.ClaimRun(ctx, d.ID))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.DiscussionMessage{
		{Speaker: model.SpeakerSystem, Content: `Opening the discussion on "water rights".`, Timestamp: base},
		{Speaker: "Mira", Content: "We should meter the wells.", Timestamp: base.Add(time.Second)},
		{Speaker: "Oren", Content: "Metering punishes the outer farms.", Timestamp: base.Add(2 * time.Second)},
	}
	result := &model.DiscussionResult{
		DiscussionID: d.ID,
		Theme:        d.Theme,
		World:        w.Name,
		Participants: []string{"Mira", "Oren"},
		Messages:     msgs,
		Status:       model.StatusCompleted,
		Note:         "generated by mock strategy",
	}
	require.NoError(t, st.FinishRun(ctx, d.ID, model.StatusCompleted, result))

	got, err := st.GetDiscussion(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	require.Equal(t, result.Participants, got.Result.Participants)
	require.Equal(t, msgs, got.Result.Messages, "message order and content survive the round trip")
}

func TestUpdateDiscussionStatusReset(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	d := seedDiscussion(t, st, w.ID)
	require.NoError(t, st.ClaimRun(ctx, d.ID))

	// Status reset is refused while the run is live.
	got, err := st.UpdateDiscussion(ctx, d.ID, &model.UpdateDiscussionRequest{Status: model.StatusPending})
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, got.Status)

	require.NoError(t, st.FinishRun(ctx, d.ID, model.StatusFailed, &model.DiscussionResult{
		DiscussionID: d.ID,
		Status:       model.StatusFailed,
		Error:        "boom",
	}))

	// Terminal discussions reset to pending and drop the stale result.
	got, err = st.UpdateDiscussion(ctx, d.ID, &model.UpdateDiscussionRequest{Status: model.StatusPending})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Status)
	require.Nil(t, got.Result)
}

func TestListDiscussionsFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	w := seedWorld(t, st)
	for i := 0; i < 3; i++ {
		seedDiscussion(t, st, w.ID)
	}

	page, err := st.ListDiscussions(ctx, w.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := st.ListDiscussions(ctx, w.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Greater(t, rest[0].ID, page[1].ID, "pagination preserves id order")
}
