package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/persona-worlds/brainstorm-api/internal/engine"
	"github.com/persona-worlds/brainstorm-api/internal/generate"
	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

type testServer struct {
	*httptest.Server
	store    *store.SQLiteStore
	registry *progress.Registry
	engine   *engine.Engine
}

// newTestServer wires the full API over an in-memory store with only
// the mock generation strategy available, mirroring the production
// router layout. Reveal pacing is disabled.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logger.NewNop()
	reg := progress.NewRegistry(time.Minute, log)
	t.Cleanup(reg.Close)

	gen := generate.NewGenerator(generate.DefaultStrategies("", ""), time.Second, log)
	eng := engine.New(st, reg, gen, 0, log)
	t.Cleanup(eng.Close)

	healthHandler := NewHealthHandler(st)
	worldHandler := NewWorldHandler(st, log)
	worldGenHandler := NewWorldGenHandler(st, generate.NewWorldGenerator("", log), log)
	characterHandler := NewCharacterHandler(st, log)
	discussionHandler := NewDiscussionHandler(st, eng, log)
	streamHandler := NewStreamHandler(st, reg, log)
	wsHandler := NewWSHandler(st, reg, eng, log)

	r := chi.NewRouter()

	// Same global middleware chain as production wiring, so the SSE and
	// WebSocket tests exercise streaming through the wrapped writer.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/worlds", func(r chi.Router) {
			r.Post("/", worldHandler.Create)
			r.Get("/", worldHandler.List)
			r.Post("/generate", worldGenHandler.Generate)
			r.Get("/generate-stream", worldGenHandler.GenerateStream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", worldHandler.Get)
				r.Put("/", worldHandler.Update)
				r.Delete("/", worldHandler.Delete)
			})
		})
		r.Route("/characters", func(r chi.Router) {
			r.Post("/", characterHandler.Create)
			r.Get("/", characterHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", characterHandler.Get)
				r.Put("/", characterHandler.Update)
				r.Delete("/", characterHandler.Delete)
			})
		})
		r.Route("/discussions", func(r chi.Router) {
			r.Post("/", discussionHandler.Create)
			r.Get("/", discussionHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", discussionHandler.Get)
				r.Put("/", discussionHandler.Update)
				r.Post("/start", discussionHandler.Start)
				r.Get("/stream", streamHandler.Stream)
				r.Delete("/stream", streamHandler.Unregister)
			})
		})
		r.Get("/ws/discussions/{id}", wsHandler.Discussion)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: st, registry: reg, engine: eng}
}

// seedDiscussion creates a world with two characters and one pending
// discussion, returning the discussion ID.
func (s *testServer) seedDiscussion(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()

	world := &model.World{Name: "Aquila", Background: "post-collapse trade hub"}
	require.NoError(t, s.store.CreateWorld(ctx, world))
	for _, name := range []string{"Mira", "Oren"} {
		require.NoError(t, s.store.CreateCharacter(ctx, &model.Character{
			Name: name, Personality: "opinionated", WorldID: world.ID,
		}))
	}

	d := &model.Discussion{Theme: "water rights", WorldID: world.ID}
	require.NoError(t, s.store.CreateDiscussion(ctx, d))
	return d.ID
}

// waitSnapshotTerminal blocks until the registry holds the terminal
// snapshot for the discussion. The status write lands just before the
// terminal publish, so a poller can observe completion first.
func (s *testServer) waitSnapshotTerminal(t *testing.T, id int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, ok := s.registry.Current(id)
		return ok && snap.Completed
	}, time.Second, 5*time.Millisecond)
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (s *testServer) putJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, s.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (s *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/ready")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
