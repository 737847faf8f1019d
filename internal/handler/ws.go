package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/persona-worlds/brainstorm-api/internal/engine"
	"github.com/persona-worlds/brainstorm-api/internal/middleware"
	"github.com/persona-worlds/brainstorm-api/internal/model"
	"github.com/persona-worlds/brainstorm-api/internal/progress"
	"github.com/persona-worlds/brainstorm-api/internal/store"
	"github.com/persona-worlds/brainstorm-api/pkg/logger"
	"github.com/persona-worlds/brainstorm-api/pkg/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSHandler handles the WebSocket progress transport.
type WSHandler struct {
	store    store.Store
	registry *progress.Registry
	engine   *engine.Engine
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(st store.Store, reg *progress.Registry, eng *engine.Engine, log *logger.Logger) *WSHandler {
	return &WSHandler{
		store:    st,
		registry: reg,
		engine:   eng,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Discussion handles GET /api/v1/ws/discussions/:id
//
// Server-push only: the same snapshot payload as SSE is written on
// every change and the connection closes after the terminal one.
// Connecting to a pending discussion starts the run; a lost race with
// another transport degrades transparently to observing.
func (h *WSHandler) Discussion(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.IncrementWSConnections()
	defer metrics.DecrementWSConnections()

	discussion, err := h.store.GetDiscussion(r.Context(), id)
	if err != nil {
		h.writeEvent(conn, model.ProgressEvent{
			Completed: true,
			Error:     "discussion not found",
		})
		return
	}

	if discussion.Status == model.StatusPending {
		if err := h.engine.Start(r.Context(), id); err != nil && !errors.Is(err, engine.ErrAlreadyRunning) {
			h.writeEvent(conn, model.ProgressEvent{
				Completed: true,
				Error:     err.Error(),
			})
			return
		}
	}

	sub, current, live := h.registry.Subscribe(id)
	if !live {
		// No in-flight run; re-read the record so a run that went
		// terminal and retired since the first read is reported as
		// terminal, then deliver it as the single event.
		if fresh, err := h.store.GetDiscussion(r.Context(), id); err == nil {
			discussion = fresh
		}
		h.writeEvent(conn, eventFromDiscussion(discussion))
		return
	}
	defer h.registry.Unsubscribe(sub)

	// Reader goroutine only detects client disconnect; the minimal
	// contract is server-push, inbound frames are discarded.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.writeEvent(conn, current.Event()); err != nil {
		return
	}
	if current.Completed {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			h.logger.Debug("WebSocket client disconnected", zap.Int64("discussion_id", id))
			return

		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := h.writeEvent(conn, snap.Event()); err != nil {
				return
			}
			if snap.Completed {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, ev model.ProgressEvent) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(ev)
}
