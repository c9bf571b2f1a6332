package ds

import (
	"testing"
	"time"
)

func priorityItem(taskID string, priority int, at time.Time) Item {
	return Item{
		TaskID:   taskID,
		AddedAt:  at,
		AddedBy:  AddedByUser,
		Status:   StatusQueued,
		Priority: priority,
	}
}

func TestPriorityExtractOrder(t *testing.T) {
	p := NewPriorityQueue()
	now := time.Now().UTC()
	// Priorities [3,5,3,1] in insertion order; expect priority desc with
	// FIFO among equals.
	_ = p.Add(priorityItem("p3-first", 3, now))
	_ = p.Add(priorityItem("p5", 5, now.Add(time.Millisecond)))
	_ = p.Add(priorityItem("p3-second", 3, now.Add(2*time.Millisecond)))
	_ = p.Add(priorityItem("p1", 1, now.Add(3*time.Millisecond)))

	want := []string{"p5", "p3-first", "p3-second", "p1"}
	for _, id := range want {
		got := p.Advance()
		if got == nil || got.TaskID != id {
			t.Fatalf("Advance() = %+v, want %q", got, id)
		}
		_ = p.SetStatus(got.TaskID, StatusCompleted)
	}
	if got := p.Advance(); got != nil {
		t.Fatalf("Advance() on drained queue = %+v, want nil", got)
	}
}

func TestPriorityIncreaseReordersInPlace(t *testing.T) {
	p := NewPriorityQueue()
	now := time.Now().UTC()
	_ = p.Add(priorityItem("a", 5, now))
	_ = p.Add(priorityItem("b", 1, now.Add(time.Millisecond)))

	reordered, err := p.IncreasePriority("b", 10)
	if err != nil {
		t.Fatalf("IncreasePriority() error = %v", err)
	}
	if !reordered {
		t.Fatalf("IncreasePriority() reordered = false, want true")
	}
	if got := p.Peek(); got == nil || got.TaskID != "b" {
		t.Fatalf("Peek() = %+v, want b at head", got)
	}

	reordered, err = p.IncreasePriority("b", 1)
	if err != nil {
		t.Fatalf("IncreasePriority() second error = %v", err)
	}
	if reordered {
		t.Fatalf("bump without order change reported reordered = true")
	}
}

func TestPriorityIncreaseUnknownItem(t *testing.T) {
	p := NewPriorityQueue()
	if _, err := p.IncreasePriority("missing", 1); err != ErrItemNotFound {
		t.Fatalf("IncreasePriority(missing) error = %v, want ErrItemNotFound", err)
	}
}

func TestPriorityRequeueKeepsPriorityPosition(t *testing.T) {
	p := NewPriorityQueue()
	now := time.Now().UTC()
	_ = p.Add(priorityItem("high", 9, now))
	_ = p.Add(priorityItem("low", 1, now.Add(time.Millisecond)))

	got := p.Advance()
	if got.TaskID != "high" {
		t.Fatalf("Advance() = %q, want high", got.TaskID)
	}
	if err := p.Requeue("high"); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if next := p.Peek(); next == nil || next.TaskID != "high" {
		t.Fatalf("Peek() after requeue = %+v, want high back at head", next)
	}
}
