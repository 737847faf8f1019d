// Package engine owns the discussion run lifecycle: it validates start
// preconditions, drives the generation adapter, publishes progress
// snapshots, and persists the terminal result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/generate"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

// Precondition errors, surfaced synchronously to the Start caller.
// Everything after Start returns is observable only through the
// progress channel and persisted status.
var (
	ErrNotFound         = errors.New("discussion not found")
	ErrAlreadyRunning   = errors.New("discussion already running")
	ErrAlreadyCompleted = errors.New("discussion already completed")
	ErrNoParticipants   = errors.New("no characters in this world")
)

// Engine executes discussion runs, one active run per discussion ID.
type Engine struct {
	store     store.Store
	registry  *progress.Registry
	generator *generate.Generator
	logger    *logger.Logger

	// reveal paces the staged progress updates and the progressive
	// message reveal. Zero disables pacing (tests).
	reveal time.Duration

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. Runs execute on a context owned by the engine,
// not the Start caller's, so a client disconnect never aborts a run.
func New(st store.Store, reg *progress.Registry, gen *generate.Generator, reveal time.Duration, log *logger.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     st,
		registry:  reg,
		generator: gen,
		logger:    log,
		reveal:    reveal,
		runCtx:    ctx,
		cancel:    cancel,
	}
}

// Start validates preconditions, claims the run, registers the snapshot,
// and launches the asynchronous run. It returns before any generation
// happens.
func (e *Engine) Start(ctx context.Context, discussionID int64) error {
	d, err := e.store.GetDiscussion(ctx, discussionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load discussion: %w", err)
	}

	switch d.Status {
	case model.StatusRunning:
		return ErrAlreadyRunning
	case model.StatusCompleted:
		return ErrAlreadyCompleted
	}

	world, err := e.store.GetWorld(ctx, d.WorldID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load world: %w", err)
	}

	characters, err := e.store.ListCharacters(ctx, d.WorldID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to load characters: %w", err)
	}
	if len(characters) == 0 {
		return ErrNoParticipants
	}

	// The conditional status update is the duplicate-start gate: under
	// concurrent Start calls exactly one claim succeeds.
	if err := e.store.ClaimRun(ctx, discussionID); err != nil {
		if errors.Is(err, store.ErrNotClaimable) {
			return ErrAlreadyRunning
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to claim run: %w", err)
	}

	e.registry.Register(discussionID, model.RunSnapshot{
		DiscussionID: discussionID,
		Progress:     0,
		Message:      "discussion run accepted",
	})

	runID := uuid.New().String()
	log := e.logger.WithDiscussion(discussionID, runID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(e.runCtx, d, world, characters, log)
	}()

	return nil
}

// Close stops accepting pacing delays and waits for in-flight runs.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// run executes one discussion run to a terminal state. Failures here
// never reach the Start caller; they surface through the snapshot and
// the persisted status.
func (e *Engine) run(ctx context.Context, d *model.Discussion, world *model.World, characters []model.Character, log *logger.Logger) {
	started := time.Now()
	log.Info("discussion run started",
		zap.String("theme", d.Theme),
		zap.Int("participants", len(characters)))

	snap := model.RunSnapshot{DiscussionID: d.ID}
	publish := func(progressPct int, message string) {
		if progressPct > snap.Progress {
			snap.Progress = progressPct
		}
		snap.Message = message
		e.registry.Publish(d.ID, snap)
	}

	publish(10, "initializing generation service")
	e.pause(ctx)
	publish(30, fmt.Sprintf("converting %d characters into agents", len(characters)))
	e.pause(ctx)
	publish(50, fmt.Sprintf("preparing world %q", world.Name))
	e.pause(ctx)
	publish(70, fmt.Sprintf("starting discussion %q", d.Theme))

	msgs, strategy, err := e.generator.Generate(ctx, &generate.Request{
		Theme:       d.Theme,
		Description: d.Description,
		WorldName:   world.Name,
		WorldBack:   world.Background,
		Personas:    characters,
	})
	if err != nil {
		e.finishFailed(ctx, d, world, characters, &snap, err, log)
		metrics.RecordRun("failed", time.Since(started).Seconds())
		return
	}

	// The adapter returns a final batch; reveal it progressively so
	// subscribers see the conversation grow instead of one jump.
	for i, msg := range msgs {
		snap.Messages = append(snap.Messages, msg)
		pct := 70 + (25*(i+1))/len(msgs)
		publish(pct, fmt.Sprintf("%s is speaking", msg.Speaker))
		e.pause(ctx)
	}

	result := &model.DiscussionResult{
		DiscussionID: d.ID,
		Theme:        d.Theme,
		World:        world.Name,
		Participants: participantNames(characters),
		Messages:     msgs,
		Status:       model.StatusCompleted,
		Note:         fmt.Sprintf("generated by %s strategy", strategy),
	}
	if err := e.store.FinishRun(ctx, d.ID, model.StatusCompleted, result); err != nil {
		// Persistence failure is fatal to the run.
		log.Error("failed to persist run result", zap.Error(err))
		e.finishFailed(ctx, d, world, characters, &snap, fmt.Errorf("failed to persist result: %w", err), log)
		metrics.RecordRun("failed", time.Since(started).Seconds())
		return
	}

	snap.Completed = true
	publish(100, "discussion completed")

	log.Info("discussion run completed",
		zap.String("strategy", strategy),
		zap.Int("messages", len(msgs)),
		zap.Duration("duration", time.Since(started)))
	metrics.RecordRun("completed", time.Since(started).Seconds())
}

// finishFailed records the failed status and publishes the terminal
// error snapshot. The final status write is best-effort.
func (e *Engine) finishFailed(ctx context.Context, d *model.Discussion, world *model.World, characters []model.Character, snap *model.RunSnapshot, cause error, log *logger.Logger) {
	log.Warn("discussion run failed", zap.Error(cause))

	result := &model.DiscussionResult{
		DiscussionID: d.ID,
		Theme:        d.Theme,
		World:        world.Name,
		Participants: participantNames(characters),
		Status:       model.StatusFailed,
		Error:        cause.Error(),
	}
	if err := e.store.FinishRun(ctx, d.ID, model.StatusFailed, result); err != nil {
		log.Error("failed to persist failed status", zap.Error(err))
	}

	snap.Progress = 100
	snap.Message = "discussion failed"
	snap.Completed = true
	snap.Error = cause.Error()
	e.registry.Publish(d.ID, *snap)
}

// pause sleeps for the reveal interval, returning early on engine
// shutdown.
func (e *Engine) pause(ctx context.Context) {
	if e.reveal <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.reveal):
	}
}

func participantNames(characters []model.Character) []string {
	names := make([]string, len(characters))
	for i, c := range characters {
		names[i] = c.Name
	}
	return names
}
