package store

import (
	"context"
	"sort"
	"sync"

	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/timeline"
)

// Memory is an in-process store used when no database is configured and
// as the fixture store in tests.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[string]TaskRecord
	sessions map[string]SessionRecord
}

func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[string]TaskRecord),
		sessions: make(map[string]SessionRecord),
	}
}

func (m *Memory) SaveTask(_ context.Context, task TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) GetTask(_ context.Context, taskID string) (TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return TaskRecord{}, ErrNotFound
	}
	return task, nil
}

func (m *Memory) ListTasks(_ context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TaskRecord, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *Memory) SaveSession(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = cloneSessionRecord(rec)
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return cloneSessionRecord(rec), nil
}

func (m *Memory) ListSessions(_ context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, cloneSessionRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Memory) Close() {}

func cloneSessionRecord(rec SessionRecord) SessionRecord {
	out := rec
	out.TaskIDs = append([]string(nil), rec.TaskIDs...)
	if rec.Timeline != nil {
		out.Timeline = make([]timeline.Event, 0, len(rec.Timeline))
		for _, ev := range rec.Timeline {
			out.Timeline = append(out.Timeline, ev.Clone())
		}
	}
	if rec.DataStructure != nil {
		snap := *rec.DataStructure
		snap.Items = make([]ds.Item, len(rec.DataStructure.Items))
		for i, it := range rec.DataStructure.Items {
			snap.Items[i] = it.Clone()
		}
		if rec.DataStructure.CurrentItem != nil {
			cur := rec.DataStructure.CurrentItem.Clone()
			snap.CurrentItem = &cur
		}
		if rec.DataStructure.Stats != nil {
			snap.Stats = make(map[ds.ItemStatus]int, len(rec.DataStructure.Stats))
			for k, v := range rec.DataStructure.Stats {
				snap.Stats[k] = v
			}
		}
		out.DataStructure = &snap
	}
	if rec.CompletedAt != nil {
		ts := *rec.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
