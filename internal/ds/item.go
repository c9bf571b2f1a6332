package ds

import (
	"errors"
	"time"
)

// Kind identifies which container backs a strategy. The set is closed; the
// runtime dispatches on it rather than on open-ended subtypes.
type Kind string

const (
	KindNone     Kind = "none"
	KindQueue    Kind = "queue"
	KindStack    Kind = "stack"
	KindPriority Kind = "priority_queue"
	KindDAG      Kind = "dag"
)

// ItemStatus is the per-task-in-session status, distinct from the user-owned
// task status.
type ItemStatus string

const (
	StatusQueued     ItemStatus = "queued"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
	StatusSkipped    ItemStatus = "skipped"
	StatusBlocked    ItemStatus = "blocked"
)

func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

type AddedBy string

const (
	AddedByUser  AddedBy = "user"
	AddedByAgent AddedBy = "agent"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateItem = errors.New("item already present")
	ErrCycleDetected = errors.New("dependency cycle detected")
	ErrUnknownKind   = errors.New("unknown data structure kind")
)

// Item is one task reference held by a session's data structure.
type Item struct {
	TaskID       string     `json:"task_id"`
	AddedAt      time.Time  `json:"added_at"`
	AddedBy      AddedBy    `json:"added_by"`
	Status       ItemStatus `json:"status"`
	Priority     int        `json:"priority,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Dependents   []string   `json:"dependents,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (i Item) Clone() Item {
	out := i
	if i.Dependencies != nil {
		out.Dependencies = append([]string(nil), i.Dependencies...)
	}
	if i.Dependents != nil {
		out.Dependents = append([]string(nil), i.Dependents...)
	}
	if i.EndedAt != nil {
		t := *i.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Snapshot is the read-only view of a session's data structure, also the
// shape persisted with the session record.
type Snapshot struct {
	Type        Kind               `json:"type"`
	Items       []Item             `json:"items"`
	CurrentItem *Item              `json:"current_item,omitempty"`
	Stats       map[ItemStatus]int `json:"stats"`
}

// Container is the verb set shared by every structure kind. Methods are not
// goroutine safe; the owning strategy runtime serializes access per session.
type Container interface {
	Kind() Kind
	Size() int
	IsEmpty() bool
	// Remaining counts items not yet in a terminal status.
	Remaining() int
	Items() []Item
	Get(taskID string) (Item, bool)
	// Peek returns a copy of the next candidate, or nil when no work is
	// available. A nil result is a normal end-of-work signal, not an error.
	Peek() *Item
	// Advance activates the next candidate (marks it processing) and returns
	// a copy, or nil when no work is available.
	Advance() *Item
	Add(item Item) error
	SetStatus(taskID string, status ItemStatus) error
	Stats() map[ItemStatus]int
	Snapshot(currentTaskID string) Snapshot
}

// New constructs an empty container for the given kind. KindNone has no
// container; callers must not ask for one.
func New(kind Kind) (Container, error) {
	switch kind {
	case KindQueue:
		return NewQueue(), nil
	case KindStack:
		return NewStack(), nil
	case KindPriority:
		return NewPriorityQueue(), nil
	case KindDAG:
		return NewDAG(), nil
	default:
		return nil, ErrUnknownKind
	}
}

func findIndex(items []Item, taskID string) int {
	for i := range items {
		if items[i].TaskID == taskID {
			return i
		}
	}
	return -1
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

func statsOf(items []Item) map[ItemStatus]int {
	out := make(map[ItemStatus]int, 6)
	for i := range items {
		out[items[i].Status]++
	}
	return out
}

func remainingOf(items []Item) int {
	n := 0
	for i := range items {
		if !items[i].Status.Terminal() {
			n++
		}
	}
	return n
}

func snapshotOf(kind Kind, items []Item, currentTaskID string) Snapshot {
	snap := Snapshot{
		Type:  kind,
		Items: cloneItems(items),
		Stats: statsOf(items),
	}
	if currentTaskID != "" {
		if idx := findIndex(items, currentTaskID); idx >= 0 {
			cur := items[idx].Clone()
			snap.CurrentItem = &cur
		}
	}
	return snap
}

func applyStatus(items []Item, taskID string, status ItemStatus) error {
	idx := findIndex(items, taskID)
	if idx < 0 {
		return ErrItemNotFound
	}
	items[idx].Status = status
	if status.Terminal() {
		if items[idx].EndedAt == nil {
			now := time.Now().UTC()
			items[idx].EndedAt = &now
		}
	} else {
		items[idx].EndedAt = nil
	}
	return nil
}
