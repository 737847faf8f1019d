package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// StreamHandler handles the SSE progress transport.
type StreamHandler struct {
	store    store.Store
	registry *progress.Registry
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(st store.Store, reg *progress.Registry, log *logger.Logger) *StreamHandler {
	return &StreamHandler{store: st, registry: reg, logger: log}
}

// Stream handles GET /api/v1/discussions/:id/stream
//
// One SSE event is emitted per snapshot change; the stream closes after
// the terminal event. A client attaching after the run completed still
// receives exactly one terminal event, either from the retained
// snapshot or, past the grace period, from the persisted record.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, current, live := h.registry.Subscribe(id)
	if !live {
		// No in-flight run; fall back to the persisted record.
		discussion, err := h.store.GetDiscussion(ctx, id)
		if err != nil {
			writeError(w, http.StatusNotFound, "discussion not found")
			return
		}
		flusher, ok := prepareSSE(w)
		if !ok {
			return
		}
		if err := sendSSEEvent(w, flusher, "progress", eventFromDiscussion(discussion)); err != nil {
			h.logger.Debug("failed to write SSE event", zap.Error(err))
		}
		return
	}
	defer h.registry.Unsubscribe(sub)

	flusher, ok := prepareSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	if err := sendSSEEvent(w, flusher, "progress", current.Event()); err != nil {
		return
	}
	if current.Completed {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.Int64("discussion_id", id))
			return

		case snap, ok := <-sub.Updates():
			if !ok {
				// Entry retired underneath us; the terminal event was
				// already delivered or the run was replaced.
				return
			}
			if err := sendSSEEvent(w, flusher, "progress", snap.Event()); err != nil {
				return
			}
			if snap.Completed {
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{
				"timestamp": time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}

// Unregister handles DELETE /api/v1/discussions/:id/stream
//
// Best-effort cleanup hint: retires a terminal snapshot ahead of its
// grace period. Not required for correctness.
func (h *StreamHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.Retire(id)
	w.WriteHeader(http.StatusNoContent)
}

func prepareSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
