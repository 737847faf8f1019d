package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/persona-worlds/brainstorm-api/internal/engine"
	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

// DiscussionHandler handles discussion endpoints.
type DiscussionHandler struct {
	store  store.Store
	engine *engine.Engine
	logger *logger.Logger
}

// NewDiscussionHandler creates a new discussion handler.
func NewDiscussionHandler(st store.Store, eng *engine.Engine, log *logger.Logger) *DiscussionHandler {
	return &DiscussionHandler{store: st, engine: eng, logger: log}
}

// Create handles POST /api/v1/discussions
func (h *DiscussionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDiscussionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTheme(req.Theme); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.GetWorld(r.Context(), req.WorldID); err != nil {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}

	discussion := &model.Discussion{
		Theme:       req.Theme,
		Description: req.Description,
		WorldID:     req.WorldID,
	}
	if err := h.store.CreateDiscussion(r.Context(), discussion); err != nil {
		h.logger.Error("failed to create discussion")
		writeError(w, http.StatusInternalServerError, "failed to create discussion")
		return
	}

	writeJSON(w, http.StatusCreated, discussion)
}

// List handles GET /api/v1/discussions
func (h *DiscussionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	worldID := parseWorldFilter(r)

	discussions, err := h.store.ListDiscussions(r.Context(), worldID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list discussions")
		writeError(w, http.StatusInternalServerError, "failed to list discussions")
		return
	}
	if discussions == nil {
		discussions = []model.Discussion{}
	}

	writeJSON(w, http.StatusOK, discussions)
}

// Get handles GET /api/v1/discussions/:id
//
// This read doubles as the polling transport: clients poll it until the
// status turns terminal and read the result from the same record.
func (h *DiscussionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	discussion, err := h.store.GetDiscussion(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "discussion not found")
		return
	}

	writeJSON(w, http.StatusOK, discussion)
}

// Update handles PUT /api/v1/discussions/:id
func (h *DiscussionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateDiscussionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Theme != "" {
		if err := middleware.ValidateTheme(req.Theme); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	discussion, err := h.store.UpdateDiscussion(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "discussion not found")
			return
		}
		h.logger.Error("failed to update discussion")
		writeError(w, http.StatusInternalServerError, "failed to update discussion")
		return
	}

	writeJSON(w, http.StatusOK, discussion)
}

// Start handles POST /api/v1/discussions/:id/start
//
// Precondition failures are reported here synchronously; anything that
// goes wrong after acceptance is observable only through the progress
// transports and the persisted status.
func (h *DiscussionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Start(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			writeError(w, http.StatusNotFound, "discussion not found")
		case errors.Is(err, engine.ErrAlreadyRunning):
			writeError(w, http.StatusBadRequest, "discussion already running")
		case errors.Is(err, engine.ErrAlreadyCompleted):
			writeError(w, http.StatusBadRequest, "discussion already completed")
		case errors.Is(err, engine.ErrNoParticipants):
			writeError(w, http.StatusBadRequest, "no characters in this world")
		default:
			h.logger.Error("failed to start discussion")
			writeError(w, http.StatusInternalServerError, "failed to start discussion")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, model.StartDiscussionResponse{
		Message:      "Discussion started",
		DiscussionID: id,
	})
}
