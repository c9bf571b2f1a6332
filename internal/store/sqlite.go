package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raghavared/agent-maestro/internal/session"
)

// SQLite persists tasks and sessions in an embedded database file. It
// mirrors the postgres layout but keeps timestamps as RFC3339 text and
// documents as JSON text, which is how SQLite is happiest.
type SQLite struct {
	db   *sql.DB
	path string
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	st := &SQLite{db: db, path: path}
	if err := st.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			user_status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			strategy_id TEXT NOT NULL,
			task_ids TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			timeline TEXT NOT NULL DEFAULT '[]',
			data_structure TEXT NULL,
			created_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			completed_at TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) SaveTask(ctx context.Context, task TaskRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, user_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			title=excluded.title,
			description=excluded.description,
			user_status=excluded.user_status,
			created_at=excluded.created_at,
			updated_at=excluded.updated_at`,
		task.ID,
		task.Title,
		task.Description,
		string(task.UserStatus),
		formatTS(task.CreatedAt),
		formatTS(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func (s *SQLite) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, user_status, created_at, updated_at
		   FROM tasks WHERE id = ?`,
		taskID,
	)
	task, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TaskRecord{}, ErrNotFound
		}
		return TaskRecord{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *SQLite) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, user_status, created_at, updated_at
		   FROM tasks ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]TaskRecord, 0, limit)
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLite) SaveSession(ctx context.Context, rec SessionRecord) error {
	taskIDs, timelineDoc, dsDoc, err := encodeSessionDocs(rec)
	if err != nil {
		return err
	}
	var dsText any
	if dsDoc != nil {
		dsText = string(dsDoc)
	}
	var completed any
	if rec.CompletedAt != nil {
		completed = formatTS(*rec.CompletedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (
			id, strategy_id, task_ids, status, timeline, data_structure,
			created_at, last_activity_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			strategy_id=excluded.strategy_id,
			task_ids=excluded.task_ids,
			status=excluded.status,
			timeline=excluded.timeline,
			data_structure=excluded.data_structure,
			created_at=excluded.created_at,
			last_activity_at=excluded.last_activity_at,
			completed_at=excluded.completed_at`,
		rec.ID,
		rec.StrategyID,
		string(taskIDs),
		string(rec.Status),
		string(timelineDoc),
		dsText,
		formatTS(rec.CreatedAt),
		formatTS(rec.LastActivityAt),
		completed,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, strategy_id, task_ids, status, timeline, data_structure,
		        created_at, last_activity_at, completed_at
		   FROM sessions WHERE id = ?`,
		sessionID,
	)
	rec, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, task_ids, status, timeline, data_structure,
		        created_at, last_activity_at, completed_at
		   FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func scanSQLiteTask(row rowScanner) (TaskRecord, error) {
	var task TaskRecord
	var status, createdAt, updatedAt string
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &createdAt, &updatedAt); err != nil {
		return TaskRecord{}, err
	}
	task.UserStatus = UserStatus(status)
	var err error
	if task.CreatedAt, err = parseTS(createdAt); err != nil {
		return TaskRecord{}, err
	}
	if task.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return TaskRecord{}, err
	}
	return task, nil
}

func scanSQLiteSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var status, createdAt, lastActivityAt string
	var taskIDs, timelineDoc string
	var dsDoc, completedAt sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.StrategyID,
		&taskIDs,
		&status,
		&timelineDoc,
		&dsDoc,
		&createdAt,
		&lastActivityAt,
		&completedAt,
	)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Status = session.Status(status)
	if rec.CreatedAt, err = parseTS(createdAt); err != nil {
		return SessionRecord{}, err
	}
	if rec.LastActivityAt, err = parseTS(lastActivityAt); err != nil {
		return SessionRecord{}, err
	}
	if completedAt.Valid {
		ts, err := parseTS(completedAt.String)
		if err != nil {
			return SessionRecord{}, err
		}
		rec.CompletedAt = &ts
	}
	var dsBytes []byte
	if dsDoc.Valid {
		dsBytes = []byte(dsDoc.String)
	}
	if err := decodeSessionDocs(&rec, []byte(taskIDs), []byte(timelineDoc), dsBytes); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
