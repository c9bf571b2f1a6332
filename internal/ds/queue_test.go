package ds

import (
	"testing"
	"time"
)

func queueItem(taskID string, at time.Time) Item {
	return Item{
		TaskID:  taskID,
		AddedAt: at,
		AddedBy: AddedByUser,
		Status:  StatusQueued,
	}
}

func TestQueueRoundTrip(t *testing.T) {
	q := NewQueue()
	now := time.Now().UTC()
	if err := q.Add(queueItem("t1", now)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got := q.Advance()
	if got == nil {
		t.Fatalf("Advance() = nil, want item")
	}
	if got.TaskID != "t1" {
		t.Fatalf("Advance().TaskID = %q, want %q", got.TaskID, "t1")
	}
	if got.Status != StatusProcessing {
		t.Fatalf("Advance().Status = %q, want %q", got.Status, StatusProcessing)
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	now := time.Now().UTC()
	for i, id := range []string{"t1", "t2", "t3"} {
		if err := q.Add(queueItem(id, now.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	for _, want := range []string{"t1", "t2", "t3"} {
		got := q.Advance()
		if got == nil || got.TaskID != want {
			t.Fatalf("Advance() = %+v, want taskID %q", got, want)
		}
		if err := q.SetStatus(got.TaskID, StatusCompleted); err != nil {
			t.Fatalf("SetStatus(%s) error = %v", got.TaskID, err)
		}
	}
	if got := q.Advance(); got != nil {
		t.Fatalf("Advance() on drained queue = %+v, want nil", got)
	}
}

func TestQueueRequeueMovesToTail(t *testing.T) {
	q := NewQueue()
	now := time.Now().UTC()
	for i, id := range []string{"t1", "t2", "t3"} {
		if err := q.Add(queueItem(id, now.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	first := q.Advance()
	if first.TaskID != "t1" {
		t.Fatalf("first = %q, want t1", first.TaskID)
	}
	if err := q.Requeue("t1"); err != nil {
		t.Fatalf("Requeue(t1) error = %v", err)
	}

	order := []string{}
	for it := q.Advance(); it != nil; it = q.Advance() {
		order = append(order, it.TaskID)
		_ = q.SetStatus(it.TaskID, StatusCompleted)
	}
	want := []string{"t2", "t3", "t1"}
	if len(order) != len(want) {
		t.Fatalf("drained order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drained order = %v, want %v", order, want)
		}
	}
}

func TestQueueEmptyPeekIsNil(t *testing.T) {
	q := NewQueue()
	if got := q.Peek(); got != nil {
		t.Fatalf("Peek() on empty queue = %+v, want nil", got)
	}
	if got := q.Advance(); got != nil {
		t.Fatalf("Advance() on empty queue = %+v, want nil", got)
	}
}

func TestQueueRejectsDuplicates(t *testing.T) {
	q := NewQueue()
	now := time.Now().UTC()
	if err := q.Add(queueItem("t1", now)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := q.Add(queueItem("t1", now)); err != ErrDuplicateItem {
		t.Fatalf("duplicate Add() error = %v, want ErrDuplicateItem", err)
	}
}

func TestQueueStats(t *testing.T) {
	q := NewQueue()
	now := time.Now().UTC()
	_ = q.Add(queueItem("t1", now))
	_ = q.Add(queueItem("t2", now))
	_ = q.Advance()
	_ = q.SetStatus("t1", StatusCompleted)

	stats := q.Stats()
	if stats[StatusCompleted] != 1 {
		t.Fatalf("stats[completed] = %d, want 1", stats[StatusCompleted])
	}
	if stats[StatusQueued] != 1 {
		t.Fatalf("stats[queued] = %d, want 1", stats[StatusQueued])
	}
	if q.Remaining() != 1 {
		t.Fatalf("Remaining() = %d, want 1", q.Remaining())
	}
}
