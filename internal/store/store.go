// Package store provides durable storage for worlds, characters, and
// discussions.
package store

import (
	"context"
	"errors"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrNotClaimable is returned by ClaimRun when the discussion exists but
// is not in a startable state.
var ErrNotClaimable = errors.New("discussion not in a startable state")

// Store is the persistence gateway. The run engine writes discussion
// state only at well-defined checkpoints (run start, run end).
type Store interface {
	// Worlds
	CreateWorld(ctx context.Context, w *model.World) error
	GetWorld(ctx context.Context, id int64) (*model.World, error)
	ListWorlds(ctx context.Context, limit, offset int) ([]model.World, error)
	UpdateWorld(ctx context.Context, id int64, req *model.UpdateWorldRequest) (*model.World, error)
	DeleteWorld(ctx context.Context, id int64) error

	// Characters
	CreateCharacter(ctx context.Context, c *model.Character) error
	GetCharacter(ctx context.Context, id int64) (*model.Character, error)
	ListCharacters(ctx context.Context, worldID int64, limit, offset int) ([]model.Character, error)
	UpdateCharacter(ctx context.Context, id int64, req *model.UpdateCharacterRequest) (*model.Character, error)
	DeleteCharacter(ctx context.Context, id int64) error

	// Discussions
	CreateDiscussion(ctx context.Context, d *model.Discussion) error
	GetDiscussion(ctx context.Context, id int64) (*model.Discussion, error)
	ListDiscussions(ctx context.Context, worldID int64, limit, offset int) ([]model.Discussion, error)
	UpdateDiscussion(ctx context.Context, id int64, req *model.UpdateDiscussionRequest) (*model.Discussion, error)

	// ClaimRun atomically transitions a discussion from a startable
	// status (pending or failed) to running. Exactly one concurrent
	// caller wins; the rest get ErrNotClaimable.
	ClaimRun(ctx context.Context, id int64) error

	// FinishRun records the terminal status and result of a run.
	FinishRun(ctx context.Context, id int64, status model.DiscussionStatus, result *model.DiscussionResult) error

	Ping(ctx context.Context) error
	Close() error
}
