package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/session"
	"github.com/raghavared/agent-maestro/internal/timeline"
)

func TestMemoryTaskRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	task := TaskRecord{
		ID:         "t-1",
		Title:      "write report",
		UserStatus: UserStatusTodo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := st.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "write report" || got.UserStatus != UserStatusTodo {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := st.GetTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListTasksNewestFirst(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		task := TaskRecord{
			ID:         id,
			UserStatus: UserStatusTodo,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			UpdatedAt:  base,
		}
		if err := st.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask %s: %v", id, err)
		}
	}

	got, err := st.ListTasks(ctx, 2)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit 2, got %d", len(got))
	}
	if got[0].ID != "t-3" || got[1].ID != "t-2" {
		t.Fatalf("expected newest first, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestMemoryDeleteTask(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.DeleteTask(ctx, "t-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
	if err := st.SaveTask(ctx, TaskRecord{ID: "t-1", UserStatus: UserStatusTodo}); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := st.DeleteTask(ctx, "t-1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := st.GetTask(ctx, "t-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("task still present after delete: %v", err)
	}
}

func TestMemorySessionRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := SessionRecord{
		ID:         "s-1",
		StrategyID: "queue",
		TaskIDs:    []string{"t-1", "t-2"},
		Status:     session.StatusWorking,
		Timeline: []timeline.Event{
			timeline.New(timeline.TypeSessionStarted, "", "session started", nil),
		},
		DataStructure: &ds.Snapshot{
			Type: ds.KindQueue,
			Items: []ds.Item{
				{TaskID: "t-1", Status: ds.StatusProcessing, AddedAt: now},
				{TaskID: "t-2", Status: ds.StatusQueued, AddedAt: now},
			},
			Stats: map[ds.ItemStatus]int{ds.StatusProcessing: 1, ds.StatusQueued: 1},
		},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := st.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := st.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.StrategyID != "queue" || got.Status != session.StatusWorking {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.TaskIDs) != 2 || len(got.Timeline) != 1 {
		t.Fatalf("expected 2 task ids and 1 event, got %d and %d", len(got.TaskIDs), len(got.Timeline))
	}
	if got.DataStructure == nil || got.DataStructure.Type != ds.KindQueue {
		t.Fatalf("expected queue snapshot, got %+v", got.DataStructure)
	}
}

func TestMemorySessionReturnsClones(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	now := time.Now().UTC()
	rec := SessionRecord{
		ID:             "s-1",
		StrategyID:     "stack",
		TaskIDs:        []string{"t-1"},
		Status:         session.StatusIdle,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := st.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	first, err := st.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	first.TaskIDs[0] = "mutated"
	first.Status = session.StatusFailed

	second, err := st.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if second.TaskIDs[0] != "t-1" || second.Status != session.StatusIdle {
		t.Fatalf("stored record was mutated through a returned copy: %+v", second)
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	st, mode, err := Open(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if mode != "memory" {
		t.Fatalf("expected memory mode, got %q", mode)
	}
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(ctx, t.TempDir()+"/maestro.db")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer st.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	completed := now.Add(time.Minute)
	rec := SessionRecord{
		ID:         "s-1",
		StrategyID: "priority",
		TaskIDs:    []string{"t-1"},
		Status:     session.StatusCompleted,
		Timeline: []timeline.Event{
			timeline.New(timeline.TypeTaskCompleted, "t-1", "done", nil),
		},
		DataStructure: &ds.Snapshot{
			Type:  ds.KindPriority,
			Items: []ds.Item{{TaskID: "t-1", Status: ds.StatusCompleted, Priority: 5, AddedAt: now}},
			Stats: map[ds.ItemStatus]int{ds.StatusCompleted: 1},
		},
		CreatedAt:      now,
		LastActivityAt: now,
		CompletedAt:    &completed,
	}
	if err := st.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := st.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != session.StatusCompleted || got.StrategyID != "priority" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Fatalf("completed_at did not survive round trip: %v", got.CompletedAt)
	}
	if got.DataStructure == nil || got.DataStructure.Items[0].Priority != 5 {
		t.Fatalf("snapshot did not survive round trip: %+v", got.DataStructure)
	}

	if _, err := st.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteTaskUpsert(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(ctx, t.TempDir()+"/maestro.db")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer st.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	task := TaskRecord{ID: "t-1", Title: "draft", UserStatus: UserStatusTodo, CreatedAt: now, UpdatedAt: now}
	if err := st.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	task.UserStatus = UserStatusInProgress
	task.UpdatedAt = now.Add(time.Second)
	if err := st.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask upsert: %v", err)
	}

	got, err := st.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.UserStatus != UserStatusInProgress {
		t.Fatalf("upsert did not apply, got %q", got.UserStatus)
	}

	tasks, err := st.ListTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected single row after upsert, got %d", len(tasks))
	}
}
