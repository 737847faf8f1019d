// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

// WorldHandler handles world endpoints.
type WorldHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewWorldHandler creates a new world handler.
func NewWorldHandler(st store.Store, log *logger.Logger) *WorldHandler {
	return &WorldHandler{store: st, logger: log}
}

// Create handles POST /api/v1/worlds
func (h *WorldHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	world := &model.World{
		Name:        req.Name,
		Description: req.Description,
		Background:  req.Background,
	}
	if err := h.store.CreateWorld(r.Context(), world); err != nil {
		h.logger.Error("failed to create world")
		writeError(w, http.StatusInternalServerError, "failed to create world")
		return
	}

	writeJSON(w, http.StatusCreated, world)
}

// List handles GET /api/v1/worlds
func (h *WorldHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	worlds, err := h.store.ListWorlds(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list worlds")
		writeError(w, http.StatusInternalServerError, "failed to list worlds")
		return
	}
	if worlds == nil {
		worlds = []model.World{}
	}

	writeJSON(w, http.StatusOK, worlds)
}

// Get handles GET /api/v1/worlds/:id
func (h *WorldHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	world, err := h.store.GetWorld(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}

	writeJSON(w, http.StatusOK, world)
}

// Update handles PUT /api/v1/worlds/:id
func (h *WorldHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		if err := middleware.ValidateName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	world, err := h.store.UpdateWorld(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "world not found")
			return
		}
		h.logger.Error("failed to update world")
		writeError(w, http.StatusInternalServerError, "failed to update world")
		return
	}

	writeJSON(w, http.StatusOK, world)
}

// Delete handles DELETE /api/v1/worlds/:id
func (h *WorldHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.DeleteWorld(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func parseWorldFilter(r *http.Request) int64 {
	if v := r.URL.Query().Get("world_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
