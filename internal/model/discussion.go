package model

import (
	"time"
)

// DiscussionStatus is the lifecycle status of a discussion.
type DiscussionStatus string

const (
	StatusPending   DiscussionStatus = "pending"
	StatusRunning   DiscussionStatus = "running"
	StatusCompleted DiscussionStatus = "completed"
	StatusFailed    DiscussionStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s DiscussionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SpeakerSystem is the reserved speaker label for narrative scaffolding
// messages synthesized by the platform itself.
const SpeakerSystem = "system"

// Discussion is a themed request for a simulated multi-persona
// conversation. Status transitions are monotonic along
// pending -> running -> {completed, failed}; a retry is modeled as a
// reset back to pending, never as a resumption.
type Discussion struct {
	ID          int64             `json:"id"`
	Theme       string            `json:"theme"`
	Description string            `json:"description"`
	WorldID     int64             `json:"world_id"`
	Status      DiscussionStatus  `json:"status"`
	Result      *DiscussionResult `json:"result,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
}

// DiscussionMessage is one utterance within a discussion. Ordering is
// significant and preserved end-to-end; timestamps are non-decreasing
// within a run.
type DiscussionMessage struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DiscussionResult is the persisted outcome of a discussion run.
type DiscussionResult struct {
	DiscussionID int64               `json:"discussion_id"`
	Theme        string              `json:"theme"`
	World        string              `json:"world"`
	Participants []string            `json:"participants"`
	Messages     []DiscussionMessage `json:"messages"`
	Status       DiscussionStatus    `json:"status"`
	Error        string              `json:"error,omitempty"`
	Note         string              `json:"note,omitempty"`
}

// CreateDiscussionRequest is the request to create a new discussion.
type CreateDiscussionRequest struct {
	Theme       string `json:"theme"`
	Description string `json:"description"`
	WorldID     int64  `json:"world_id"`
}

// UpdateDiscussionRequest is the request to update a discussion. Setting
// Status to "pending" resets a terminal discussion for another run.
type UpdateDiscussionRequest struct {
	Theme       string           `json:"theme,omitempty"`
	Description string           `json:"description,omitempty"`
	Status      DiscussionStatus `json:"status,omitempty"`
}

// StartDiscussionResponse is the accepted response for a start request.
type StartDiscussionResponse struct {
	Message      string `json:"message"`
	DiscussionID int64  `json:"discussion_id"`
}
