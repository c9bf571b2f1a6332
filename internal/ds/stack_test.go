package ds

import (
	"testing"
	"time"
)

func TestStackLIFOOrder(t *testing.T) {
	s := NewStack()
	now := time.Now().UTC()
	for i, id := range []string{"t1", "t2", "t3"} {
		if err := s.Add(queueItem(id, now.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	for _, want := range []string{"t3", "t2", "t1"} {
		got := s.Advance()
		if got == nil || got.TaskID != want {
			t.Fatalf("Advance() = %+v, want taskID %q", got, want)
		}
		_ = s.SetStatus(got.TaskID, StatusCompleted)
	}
}

func TestStackSubtaskInjection(t *testing.T) {
	s := NewStack()
	now := time.Now().UTC()
	_ = s.Add(queueItem("parent", now))

	got := s.Advance()
	if got.TaskID != "parent" {
		t.Fatalf("Advance() = %q, want parent", got.TaskID)
	}

	// Depth-first expansion: subtasks pushed while the parent is processing
	// are worked before anything below it.
	_ = s.Add(queueItem("sub1", now.Add(time.Millisecond)))
	_ = s.Add(queueItem("sub2", now.Add(2*time.Millisecond)))

	next := s.Peek()
	if next == nil || next.TaskID != "sub2" {
		t.Fatalf("Peek() = %+v, want sub2 on top", next)
	}
}

func TestStackRequeuePushesBackOnTop(t *testing.T) {
	s := NewStack()
	now := time.Now().UTC()
	_ = s.Add(queueItem("t1", now))
	_ = s.Add(queueItem("t2", now.Add(time.Millisecond)))

	got := s.Advance()
	if got.TaskID != "t2" {
		t.Fatalf("Advance() = %q, want t2", got.TaskID)
	}
	if err := s.Requeue("t2"); err != nil {
		t.Fatalf("Requeue(t2) error = %v", err)
	}
	next := s.Peek()
	if next == nil || next.TaskID != "t2" {
		t.Fatalf("Peek() after requeue = %+v, want t2", next)
	}
	if next.Status != StatusQueued {
		t.Fatalf("requeued status = %q, want %q", next.Status, StatusQueued)
	}
}
