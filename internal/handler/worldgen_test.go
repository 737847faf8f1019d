package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

func TestGenerateWorldPersistsWorldAndRoster(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp := s.postJSON(t, "/api/v1/worlds/generate", map[string]any{
		"keywords": "floating islands",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := decodeBody[model.GeneratedWorldResponse](t, resp)
	require.Equal(t, "template", result.GeneratedBy)
	require.Equal(t, "floating islands", result.Keywords)
	require.NotZero(t, result.World.ID)
	require.Contains(t, result.World.Name, "floating islands")
	require.Len(t, result.Characters, 3)

	// Everything in the response is backed by stored records.
	world, err := s.store.GetWorld(ctx, result.World.ID)
	require.NoError(t, err)
	require.Equal(t, result.World.Name, world.Name)
	chars, err := s.store.ListCharacters(ctx, result.World.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, chars, 3)
	for _, c := range chars {
		require.Equal(t, result.World.ID, c.WorldID)
	}
}

func TestGenerateWorldRequestShaping(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON(t, "/api/v1/worlds/generate", map[string]any{"keywords": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = s.postJSON(t, "/api/v1/worlds/generate", map[string]any{
		"keywords":            "deep forges",
		"generate_characters": false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decodeBody[model.GeneratedWorldResponse](t, resp)
	require.Empty(t, result.Characters)

	resp = s.postJSON(t, "/api/v1/worlds/generate", map[string]any{
		"keywords":        "deep forges",
		"character_count": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result = decodeBody[model.GeneratedWorldResponse](t, resp)
	require.Len(t, result.Characters, 2)
}

func TestGenerateWorldStream(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp := s.do(t, http.MethodGet, "/api/v1/worlds/generate-stream?keywords=salt+marshes&character_count=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	defer resp.Body.Close()

	var events []worldGenEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev worldGenEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
		if ev.Completed {
			break
		}
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, events)

	last := 0
	for _, ev := range events {
		require.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
	}

	final := events[len(events)-1]
	require.True(t, final.Completed)
	require.Empty(t, final.Error)
	require.NotNil(t, final.Result)
	require.Len(t, final.Result.Characters, 2)

	world, err := s.store.GetWorld(ctx, final.Result.World.ID)
	require.NoError(t, err)
	require.Contains(t, world.Name, "salt marshes")
}

func TestGenerateWorldStreamRequiresKeywords(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/v1/worlds/generate-stream")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
