package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/pkg/client"
)

func (s *testServer) apiClient() *client.Client {
	return client.New(client.Config{
		BaseURL:      s.URL,
		PollInterval: 10 * time.Millisecond,
		PollBudget:   200,
	})
}

func TestCreateDiscussionRequiresWorld(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON(t, "/api/v1/discussions", model.CreateDiscussionRequest{
		Theme: "water rights", WorldID: 99,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStartAndPollToCompletion(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	accepted, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, accepted.DiscussionID)

	d, err := c.PollUntilDone(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, d.Status)
	require.NotNil(t, d.Result)

	// Scripted system opener first, then the mock exchange in order.
	require.Equal(t, model.SpeakerSystem, d.Result.Messages[0].Speaker)
	require.Equal(t, "Mira", d.Result.Messages[1].Speaker)
	require.Equal(t, "Oren", d.Result.Messages[2].Speaker)
}

func TestStartErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)

	resp := s.do(t, http.MethodPost, "/api/v1/discussions/99/start")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Run to completion, then a second start is a 400.
	c := s.apiClient()
	_, err := c.StartDiscussion(context.Background(), id)
	require.NoError(t, err)
	_, err = c.PollUntilDone(context.Background(), id)
	require.NoError(t, err)

	resp = s.do(t, http.MethodPost, "/api/v1/discussions/1/start")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStartEmptyWorld(t *testing.T) {
	s := newTestServer(t)

	world := &model.World{Name: "Void"}
	require.NoError(t, s.store.CreateWorld(context.Background(), world))
	d := &model.Discussion{Theme: "silence", WorldID: world.ID}
	require.NoError(t, s.store.CreateDiscussion(context.Background(), d))

	resp := s.do(t, http.MethodPost, "/api/v1/discussions/1/start")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	require.Contains(t, body["error"], "no characters")
}

func TestPollBudgetExhausted(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)

	// Never started, so the status stays pending past the budget.
	c := client.New(client.Config{
		BaseURL:      s.URL,
		PollInterval: time.Millisecond,
		PollBudget:   3,
	})
	_, err := c.PollUntilDone(context.Background(), id)
	require.ErrorIs(t, err, client.ErrPollTimeout)
}

func TestUpdateDiscussionReset(t *testing.T) {
	s := newTestServer(t)
	id := s.seedDiscussion(t)
	c := s.apiClient()
	ctx := context.Background()

	_, err := c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	_, err = c.PollUntilDone(ctx, id)
	require.NoError(t, err)

	// Resetting to pending enables a fresh run attempt.
	resp := s.putJSON(t, "/api/v1/discussions/1", model.UpdateDiscussionRequest{
		Status: model.StatusPending,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decodeBody[model.Discussion](t, resp)
	require.Equal(t, model.StatusPending, d.Status)
	require.Nil(t, d.Result)

	_, err = c.StartDiscussion(ctx, id)
	require.NoError(t, err)
	done, err := c.PollUntilDone(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, done.Status)
}

func TestListDiscussionsByWorld(t *testing.T) {
	s := newTestServer(t)
	s.seedDiscussion(t)

	resp := s.do(t, http.MethodGet, "/api/v1/discussions?world_id=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]model.Discussion](t, resp)
	require.Len(t, list, 1)
	require.Equal(t, "water rights", list[0].Theme)
}
