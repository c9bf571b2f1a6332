package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raghavared/agent-maestro/internal/timeline"
)

// Status is the session lifecycle status, distinct from any per-item status.
type Status string

const (
	StatusSpawning  Status = "spawning"
	StatusIdle      Status = "idle"
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

var (
	ErrTerminalState     = errors.New("session is in a terminal state")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotFound          = errors.New("session not found")
)

// transitions is the lifecycle table: spawning -> idle -> working ->
// {completed|failed|stopped}, with working -> idle when more work remains
// and a direct path to failed/stopped from any non-terminal state.
var transitions = map[Status][]Status{
	StatusSpawning: {StatusIdle, StatusWorking, StatusFailed, StatusStopped},
	StatusIdle:     {StatusWorking, StatusCompleted, StatusFailed, StatusStopped},
	StatusWorking:  {StatusIdle, StatusCompleted, StatusFailed, StatusStopped},
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func AllowedFrom(from Status) []Status {
	return append([]Status(nil), transitions[from]...)
}

// Session is one run of an autonomous worker bound to a strategy and a set
// of tasks. StrategyID is immutable after creation; the timeline is
// append-only.
type Session struct {
	ID             string           `json:"id"`
	StrategyID     string           `json:"strategy_id"`
	TaskIDs        []string         `json:"task_ids"`
	Status         Status           `json:"status"`
	Timeline       []timeline.Event `json:"timeline"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// New creates a session in spawning, the only creation path.
func New(strategyID string, taskIDs []string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             uuid.NewString(),
		StrategyID:     strategyID,
		TaskIDs:        append([]string(nil), taskIDs...),
		Status:         StatusSpawning,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Transition moves the session to a new lifecycle status. Entering a
// terminal status stamps CompletedAt exactly once.
func (s *Session) Transition(to Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrTerminalState)
	}
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%s -> %s (allowed: %v): %w", s.Status, to, AllowedFrom(s.Status), ErrInvalidTransition)
	}
	s.Status = to
	now := time.Now().UTC()
	s.LastActivityAt = now
	if to.Terminal() && s.CompletedAt == nil {
		s.CompletedAt = &now
	}
	return nil
}

// AppendEvent is the timeline recorder: it appends and refreshes activity.
// No update or delete verb exists.
func (s *Session) AppendEvent(evt timeline.Event) {
	s.Timeline = append(s.Timeline, evt)
	if evt.Timestamp.After(s.LastActivityAt) {
		s.LastActivityAt = evt.Timestamp
	}
}

func (s *Session) Clone() *Session {
	out := *s
	out.TaskIDs = append([]string(nil), s.TaskIDs...)
	out.Timeline = make([]timeline.Event, len(s.Timeline))
	for i := range s.Timeline {
		out.Timeline[i] = s.Timeline[i].Clone()
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
