package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/session"
	"github.com/raghavared/agent-maestro/internal/timeline"
)

// Postgres persists tasks and sessions in PostgreSQL. The timeline and
// data structure snapshot are stored as JSONB documents since they are
// always read and written whole.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			user_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			strategy_id TEXT NOT NULL,
			task_ids JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			timeline JSONB NOT NULL DEFAULT '[]',
			data_structure JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions (created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Postgres) SaveTask(ctx context.Context, task TaskRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, description, user_status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			description=EXCLUDED.description,
			user_status=EXCLUDED.user_status,
			created_at=EXCLUDED.created_at,
			updated_at=EXCLUDED.updated_at`,
		task.ID,
		task.Title,
		task.Description,
		string(task.UserStatus),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func (s *Postgres) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, description, user_status, created_at, updated_at
		   FROM tasks WHERE id=$1`,
		taskID,
	)
	var task TaskRecord
	var status string
	err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return TaskRecord{}, ErrNotFound
		}
		return TaskRecord{}, fmt.Errorf("get task: %w", err)
	}
	task.UserStatus = UserStatus(status)
	return task, nil
}

func (s *Postgres) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, user_status, created_at, updated_at
		   FROM tasks ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]TaskRecord, 0, limit)
	for rows.Next() {
		var task TaskRecord
		var status string
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &status, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		task.UserStatus = UserStatus(status)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *Postgres) DeleteTask(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) SaveSession(ctx context.Context, rec SessionRecord) error {
	taskIDs, timelineDoc, dsDoc, err := encodeSessionDocs(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (
			id, strategy_id, task_ids, status, timeline, data_structure,
			created_at, last_activity_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			strategy_id=EXCLUDED.strategy_id,
			task_ids=EXCLUDED.task_ids,
			status=EXCLUDED.status,
			timeline=EXCLUDED.timeline,
			data_structure=EXCLUDED.data_structure,
			created_at=EXCLUDED.created_at,
			last_activity_at=EXCLUDED.last_activity_at,
			completed_at=EXCLUDED.completed_at`,
		rec.ID,
		rec.StrategyID,
		taskIDs,
		string(rec.Status),
		timelineDoc,
		dsDoc,
		rec.CreatedAt,
		rec.LastActivityAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Postgres) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, strategy_id, task_ids, status, timeline, data_structure,
		        created_at, last_activity_at, completed_at
		   FROM sessions WHERE id=$1`,
		sessionID,
	)
	rec, err := scanSessionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

func (s *Postgres) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, strategy_id, task_ids, status, timeline, data_structure,
		        created_at, last_activity_at, completed_at
		   FROM sessions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSessionRow(rows)
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

func (s *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var status string
	var taskIDs, timelineDoc []byte
	var dsDoc []byte
	err := row.Scan(
		&rec.ID,
		&rec.StrategyID,
		&taskIDs,
		&status,
		&timelineDoc,
		&dsDoc,
		&rec.CreatedAt,
		&rec.LastActivityAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Status = session.Status(status)
	if err := decodeSessionDocs(&rec, taskIDs, timelineDoc, dsDoc); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func encodeSessionDocs(rec SessionRecord) (taskIDs, timelineDoc, dsDoc []byte, err error) {
	ids := rec.TaskIDs
	if ids == nil {
		ids = []string{}
	}
	taskIDs, err = json.Marshal(ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode task ids: %w", err)
	}
	events := rec.Timeline
	if events == nil {
		events = []timeline.Event{}
	}
	timelineDoc, err = json.Marshal(events)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode timeline: %w", err)
	}
	if rec.DataStructure != nil {
		dsDoc, err = json.Marshal(rec.DataStructure)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode data structure: %w", err)
		}
	}
	return taskIDs, timelineDoc, dsDoc, nil
}

func decodeSessionDocs(rec *SessionRecord, taskIDs, timelineDoc, dsDoc []byte) error {
	if len(taskIDs) > 0 {
		if err := json.Unmarshal(taskIDs, &rec.TaskIDs); err != nil {
			return fmt.Errorf("decode task ids: %w", err)
		}
	}
	if len(timelineDoc) > 0 {
		if err := json.Unmarshal(timelineDoc, &rec.Timeline); err != nil {
			return fmt.Errorf("decode timeline: %w", err)
		}
	}
	if len(dsDoc) > 0 {
		var snap ds.Snapshot
		if err := json.Unmarshal(dsDoc, &snap); err != nil {
			return fmt.Errorf("decode data structure: %w", err)
		}
		rec.DataStructure = &snap
	}
	return nil
}
