package model

// RunSnapshot is the in-flight state of a discussion run as held by the
// progress registry and pushed to transports. Progress and the message
// list only ever grow within a run; the engine is the sole writer.
type RunSnapshot struct {
	DiscussionID int64               `json:"discussion_id"`
	Progress     int                 `json:"progress"`
	Message      string              `json:"message"`
	Completed    bool                `json:"completed"`
	Error        string              `json:"error,omitempty"`
	Messages     []DiscussionMessage `json:"messages,omitempty"`
}

// ProgressEvent is the wire payload pushed by the SSE and WebSocket
// transports on every snapshot change. The shape is shared so that a
// client can switch transports without reinterpreting events.
type ProgressEvent struct {
	Progress  int                 `json:"progress"`
	Message   string              `json:"message"`
	Completed bool                `json:"completed"`
	Error     string              `json:"error,omitempty"`
	Messages  []DiscussionMessage `json:"messages,omitempty"`
}

// Event converts a snapshot to its transport payload.
func (s RunSnapshot) Event() ProgressEvent {
	return ProgressEvent{
		Progress:  s.Progress,
		Message:   s.Message,
		Completed: s.Completed,
		Error:     s.Error,
		Messages:  s.Messages,
	}
}
