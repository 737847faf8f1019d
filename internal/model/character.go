package model

import (
	"time"
)

// Character is a persona profile supplied to the generation adapter.
type Character struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Personality string     `json:"personality"`
	Background  string     `json:"background"`
	WorldID     int64      `json:"world_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// CreateCharacterRequest is the request to create a new character.
type CreateCharacterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
	WorldID     int64  `json:"world_id"`
}

// UpdateCharacterRequest is the request to update a character. Empty
// fields are left unchanged.
type UpdateCharacterRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Personality string `json:"personality,omitempty"`
	Background  string `json:"background,omitempty"`
}
