package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/generate"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

var errKeywordsRequired = errors.New("keywords is required")

// WorldGenHandler handles keyword-driven world generation.
type WorldGenHandler struct {
	store     store.Store
	generator *generate.WorldGenerator
	logger    *logger.Logger
}

// NewWorldGenHandler creates a new world generation handler.
func NewWorldGenHandler(st store.Store, gen *generate.WorldGenerator, log *logger.Logger) *WorldGenHandler {
	return &WorldGenHandler{store: st, generator: gen, logger: log}
}

// worldGenEvent is one SSE progress frame of a streamed generation.
type worldGenEvent struct {
	Message   string                        `json:"message"`
	Progress  int                           `json:"progress"`
	Completed bool                          `json:"completed"`
	Result    *model.GeneratedWorldResponse `json:"result,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

// Generate handles POST /api/v1/worlds/generate
//
// Generates a world (and optionally characters) from keywords, persists
// everything, and returns the stored records.
func (h *WorldGenHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	genReq, err := worldRequestFrom(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	generated := h.generator.Generate(r.Context(), genReq, nil)
	resp, err := h.persist(r.Context(), generated, genReq.Keywords)
	if err != nil {
		h.logger.Error("failed to save generated world", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save generated world")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GenerateStream handles GET /api/v1/worlds/generate-stream
//
// Same generation as Generate, with staged progress delivered over SSE
// and the persisted result carried on the terminal event.
func (h *WorldGenHandler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := model.GenerateWorldRequest{Keywords: q.Get("keywords")}
	if v := q.Get("generate_characters"); v != "" {
		gen := v != "false" && v != "0"
		req.GenerateCharacters = &gen
	}
	if v := q.Get("character_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.CharacterCount = n
		}
	}

	genReq, err := worldRequestFrom(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := prepareSSE(w)
	if !ok {
		return
	}

	// Generation emits at most a handful of staged updates, so the
	// buffer lets the worker run to completion even if the client
	// disappears mid-stream.
	events := make(chan worldGenEvent, 16)
	go func() {
		defer close(events)
		generated := h.generator.Generate(r.Context(), genReq, func(message string, pct int) {
			events <- worldGenEvent{Message: message, Progress: pct}
		})
		resp, err := h.persist(r.Context(), generated, genReq.Keywords)
		if err != nil {
			h.logger.Error("failed to save generated world", zap.Error(err))
			events <- worldGenEvent{
				Message:   "failed to save generated world",
				Completed: true,
				Error:     "failed to save generated world",
			}
			return
		}
		events <- worldGenEvent{
			Message:   "generation complete",
			Progress:  100,
			Completed: true,
			Result:    resp,
		}
	}()

	for ev := range events {
		if err := sendSSEEvent(w, flusher, "progress", ev); err != nil {
			return
		}
	}
}

// persist stores the generated world and its roster, returning the
// persisted records in response shape.
func (h *WorldGenHandler) persist(ctx context.Context, generated *generate.GeneratedWorld, keywords string) (*model.GeneratedWorldResponse, error) {
	world := &model.World{
		Name:        generated.Name,
		Description: generated.Description,
		Background:  generated.Background,
	}
	if err := h.store.CreateWorld(ctx, world); err != nil {
		return nil, err
	}

	characters := make([]model.Character, 0, len(generated.Characters))
	for _, gc := range generated.Characters {
		c := &model.Character{
			Name:        gc.Name,
			Description: gc.Description,
			Personality: gc.Personality,
			Background:  gc.Background,
			WorldID:     world.ID,
		}
		if err := h.store.CreateCharacter(ctx, c); err != nil {
			return nil, err
		}
		characters = append(characters, *c)
	}

	return &model.GeneratedWorldResponse{
		World:       world,
		Characters:  characters,
		GeneratedBy: generated.GeneratedBy,
		Keywords:    keywords,
	}, nil
}

func worldRequestFrom(req *model.GenerateWorldRequest) (*generate.WorldRequest, error) {
	keywords := strings.TrimSpace(req.Keywords)
	if keywords == "" {
		return nil, errKeywordsRequired
	}

	out := &generate.WorldRequest{
		Keywords:           keywords,
		GenerateCharacters: true,
		CharacterCount:     req.CharacterCount,
	}
	if req.GenerateCharacters != nil {
		out.GenerateCharacters = *req.GenerateCharacters
	}
	return out, nil
}
