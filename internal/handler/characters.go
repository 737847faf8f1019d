package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
)

// CharacterHandler handles character endpoints.
type CharacterHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewCharacterHandler creates a new character handler.
func NewCharacterHandler(st store.Store, log *logger.Logger) *CharacterHandler {
	return &CharacterHandler{store: st, logger: log}
}

// Create handles POST /api/v1/characters
func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The owning world must exist.
	if _, err := h.store.GetWorld(r.Context(), req.WorldID); err != nil {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}

	character := &model.Character{
		Name:        req.Name,
		Description: req.Description,
		Personality: req.Personality,
		Background:  req.Background,
		WorldID:     req.WorldID,
	}
	if err := h.store.CreateCharacter(r.Context(), character); err != nil {
		h.logger.Error("failed to create character")
		writeError(w, http.StatusInternalServerError, "failed to create character")
		return
	}

	writeJSON(w, http.StatusCreated, character)
}

// List handles GET /api/v1/characters
func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	worldID := parseWorldFilter(r)

	characters, err := h.store.ListCharacters(r.Context(), worldID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list characters")
		writeError(w, http.StatusInternalServerError, "failed to list characters")
		return
	}
	if characters == nil {
		characters = []model.Character{}
	}

	writeJSON(w, http.StatusOK, characters)
}

// Get handles GET /api/v1/characters/:id
func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	character, err := h.store.GetCharacter(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}

	writeJSON(w, http.StatusOK, character)
}

// Update handles PUT /api/v1/characters/:id
func (h *CharacterHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateCharacterRequest
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

	character, err := h.store.UpdateCharacter(r.Context(), id, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "character not found")
			return
		}
		h.logger.Error("failed to update character")
		writeError(w, http.StatusInternalServerError, "failed to update character")
		return
	}

	writeJSON(w, http.StatusOK, character)
}

// Delete handles DELETE /api/v1/characters/:id
func (h *CharacterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.DeleteCharacter(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
