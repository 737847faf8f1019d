// Package model defines data structures for the brainstorm platform.
package model

import (
	"time"
)

// World is a named setting that contains characters and discussions.
type World struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Background  string     `json:"background"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// CreateWorldRequest is the request to create a new world.
type CreateWorldRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Background  string `json:"background"`
}

// UpdateWorldRequest is the request to update a world. Empty fields are
// left unchanged.
type UpdateWorldRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Background  string `json:"background,omitempty"`
}

// GenerateWorldRequest asks for a world built from free-form keywords.
// GenerateCharacters defaults to true when omitted.
type GenerateWorldRequest struct {
	Keywords           string `json:"keywords"`
	GenerateCharacters *bool  `json:"generate_characters,omitempty"`
	CharacterCount     int    `json:"character_count,omitempty"`
}

// GeneratedWorldResponse is the persisted result of keyword-driven
// world generation.
type GeneratedWorldResponse struct {
	World       *World      `json:"world"`
	Characters  []Character `json:"characters"`
	GeneratedBy string      `json:"generated_by"`
	Keywords    string      `json:"keywords"`
}
