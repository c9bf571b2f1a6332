package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/session"
	"github.com/raghavared/agent-maestro/internal/timeline"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("record not found in store")

// UserStatus is the user-facing lifecycle of a task, independent of any
// session the task may be attached to.
type UserStatus string

const (
	UserStatusTodo       UserStatus = "todo"
	UserStatusInProgress UserStatus = "in_progress"
	UserStatusDone       UserStatus = "done"
	UserStatusArchived   UserStatus = "archived"
)

// ValidUserStatus reports whether s is one of the known task statuses.
func ValidUserStatus(s UserStatus) bool {
	switch s {
	case UserStatusTodo, UserStatusInProgress, UserStatusDone, UserStatusArchived:
		return true
	}
	return false
}

// TaskRecord is the persisted form of a task.
type TaskRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	UserStatus  UserStatus `json:"user_status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SessionRecord is the persisted form of a session: its identity, the
// tasks attached to it, the full timeline, and a snapshot of the data
// structure if the session's strategy carries one.
type SessionRecord struct {
	ID             string           `json:"id"`
	StrategyID     string           `json:"strategy_id"`
	TaskIDs        []string         `json:"task_ids"`
	Status         session.Status   `json:"status"`
	Timeline       []timeline.Event `json:"timeline"`
	DataStructure  *ds.Snapshot     `json:"data_structure,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Store persists tasks and sessions. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveTask(ctx context.Context, task TaskRecord) error
	GetTask(ctx context.Context, taskID string) (TaskRecord, error)
	ListTasks(ctx context.Context, limit int) ([]TaskRecord, error)
	DeleteTask(ctx context.Context, taskID string) error

	SaveSession(ctx context.Context, rec SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error

	Close()
}

// Open picks a backend from the configured connection settings: postgres
// when a database URL is set, sqlite when a file path is set, otherwise
// an in-memory store. It returns the mode name for startup logging.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, string, error) {
	switch {
	case strings.TrimSpace(databaseURL) != "":
		st, err := NewPostgres(ctx, databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres store: %w", err)
		}
		return st, "postgres", nil
	case strings.TrimSpace(sqlitePath) != "":
		st, err := NewSQLite(ctx, sqlitePath)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite store: %w", err)
		}
		return st, "sqlite", nil
	default:
		return NewMemory(), "memory", nil
	}
}
