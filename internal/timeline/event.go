package timeline

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed enum of timeline event types.
type Type string

const (
	TypeSessionStarted Type = "session_started"
	TypeSessionStopped Type = "session_stopped"
	TypeTaskStarted    Type = "task_started"
	TypeTaskCompleted  Type = "task_completed"
	TypeTaskFailed     Type = "task_failed"
	TypeTaskSkipped    Type = "task_skipped"
	TypeTaskBlocked    Type = "task_blocked"
	TypeNeedsInput     Type = "needs_input"
	TypeProgress       Type = "progress"
	TypeError          Type = "error"
	TypeMilestone      Type = "milestone"
)

// Event is one entry in a session's append-only timeline. Events are never
// edited or deleted; appending happens under the owning session's lock, so a
// single session's timeline is strictly ordered.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	TaskID    string            `json:"task_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func New(t Type, taskID, message string, metadata map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Message:   message,
		Metadata:  metadata,
	}
}

func (e Event) Clone() Event {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
