package handler

import (
	"encoding/json"
	"net/http"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// eventFromDiscussion reconstructs a progress event from the persisted
// record. Transports use it when the registry has no live entry for the
// discussion (e.g. a client attaching after the grace period).
func eventFromDiscussion(d *model.Discussion) model.ProgressEvent {
	ev := model.ProgressEvent{}
	switch d.Status {
	case model.StatusCompleted:
		ev.Progress = 100
		ev.Message = "discussion completed"
		ev.Completed = true
		if d.Result != nil {
			ev.Messages = d.Result.Messages
		}
	case model.StatusFailed:
		ev.Progress = 100
		ev.Message = "discussion failed"
		ev.Completed = true
		if d.Result != nil {
			ev.Error = d.Result.Error
		}
	case model.StatusRunning:
		ev.Message = "discussion in progress"
	default:
		ev.Message = "discussion not started"
	}
	return ev
}
