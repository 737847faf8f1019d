// Package progress holds the in-flight state of discussion runs and
// fans snapshot updates out to transport subscribers. The registry is a
// process-scoped service injected at construction time; the run engine
// is the sole writer of any given entry, transports are read-only.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

// subscriberBuffer is the per-subscriber channel depth. A slow consumer
// has its oldest pending snapshot dropped in favor of the newest; every
// snapshot carries the full accumulated state, so skipping an
// intermediate one loses nothing.
const subscriberBuffer = 16

// Subscription is one transport's handle onto a run's updates. The
// channel is closed when the entry is retired or replaced.
type Subscription struct {
	id int64
	ch chan model.RunSnapshot
}

// Updates returns the channel of snapshot changes.
func (s *Subscription) Updates() <-chan model.RunSnapshot {
	return s.ch
}

type entry struct {
	snapshot model.RunSnapshot
	subs     map[*Subscription]struct{}
	retire   *time.Timer
}

// Registry maps discussion IDs to their current run snapshots.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]*entry
	grace   time.Duration
	logger  *logger.Logger
	closed  bool
}

// NewRegistry creates a registry. Terminal snapshots are retained for
// the grace period so late-attaching clients still observe them.
func NewRegistry(grace time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		entries: make(map[int64]*entry),
		grace:   grace,
		logger:  log,
	}
}

// Register installs a fresh snapshot for a new run, replacing any stale
// prior entry for the same discussion. Subscribers of the stale entry
// are disconnected; they re-subscribe if they still care.
func (r *Registry) Register(id int64, snap model.RunSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if old, ok := r.entries[id]; ok {
		r.dropLocked(id, old)
	}
	r.entries[id] = &entry{
		snapshot: cloneSnapshot(snap),
		subs:     make(map[*Subscription]struct{}),
	}
	metrics.SnapshotsActive.Set(float64(len(r.entries)))
}

// Publish replaces the entry's snapshot and notifies subscribers. A
// terminal snapshot arms the grace-period retirement timer.
func (r *Registry) Publish(id int64, snap model.RunSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.snapshot = cloneSnapshot(snap)

	for sub := range e.subs {
		deliver(sub.ch, e.snapshot)
	}

	if snap.Completed && e.retire == nil && r.grace > 0 {
		e.retire = time.AfterFunc(r.grace, func() {
			r.Retire(id)
		})
	}
}

// Subscribe attaches to a run. The current snapshot is returned so the
// caller can deliver full state immediately; ok is false when no entry
// exists, in which case the caller falls back to persisted status.
func (r *Registry) Subscribe(id int64) (*Subscription, model.RunSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, model.RunSnapshot{}, false
	}
	sub := &Subscription{
		id: id,
		ch: make(chan model.RunSnapshot, subscriberBuffer),
	}
	e.subs[sub] = struct{}{}
	return sub, e.snapshot, true
}

// Unsubscribe detaches a handle. A terminal entry with no remaining
// subscribers is retired early; this is memory hygiene, not required
// for correctness.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sub.id]
	if !ok {
		return
	}
	if _, attached := e.subs[sub]; !attached {
		return
	}
	delete(e.subs, sub)
	close(sub.ch)

	if e.snapshot.Completed && len(e.subs) == 0 {
		r.dropLocked(sub.id, e)
	}
}

// Current returns the entry's snapshot, if one exists.
func (r *Registry) Current(id int64) (model.RunSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return model.RunSnapshot{}, false
	}
	return e.snapshot, true
}

// Retire removes a terminal entry. Non-terminal entries are left alone;
// only the engine ends a live run.
func (r *Registry) Retire(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !e.snapshot.Completed {
		return
	}
	r.dropLocked(id, e)
}

// Close retires every entry and rejects further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, e := range r.entries {
		r.dropLocked(id, e)
	}
}

func (r *Registry) dropLocked(id int64, e *entry) {
	if e.retire != nil {
		e.retire.Stop()
	}
	for sub := range e.subs {
		close(sub.ch)
	}
	delete(r.entries, id)
	metrics.SnapshotsActive.Set(float64(len(r.entries)))
	r.logger.Debug("run snapshot retired", zap.Int64("discussion_id", id))
}

// deliver pushes without blocking the publisher: when the subscriber's
// buffer is full, the oldest pending snapshot is discarded.
func deliver(ch chan model.RunSnapshot, snap model.RunSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// cloneSnapshot copies the message slice so readers never observe the
// engine appending to it.
func cloneSnapshot(s model.RunSnapshot) model.RunSnapshot {
	if len(s.Messages) > 0 {
		msgs := make([]model.DiscussionMessage, len(s.Messages))
		copy(msgs, s.Messages)
		s.Messages = msgs
	}
	return s
}
