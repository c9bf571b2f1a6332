package ds

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func dagItem(taskID string, at time.Time, deps ...string) Item {
	return Item{
		TaskID:       taskID,
		AddedAt:      at,
		AddedBy:      AddedByUser,
		Status:       StatusQueued,
		Dependencies: deps,
	}
}

func TestDAGCycleRejectedAtomically(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("a", now))
	_ = d.Add(dagItem("b", now.Add(time.Millisecond)))

	if err := d.AddEdge("a", "b"); err != nil {
		t.Fatalf("AddEdge(a,b) error = %v", err)
	}
	edgesBefore := d.EdgeCount()

	err := d.AddEdge("b", "a")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("AddEdge(b,a) error = %v, want ErrCycleDetected", err)
	}
	if got := d.EdgeCount(); got != edgesBefore {
		t.Fatalf("edge count after rejected edge = %d, want %d", got, edgesBefore)
	}
}

func TestDAGSelfEdgeRejected(t *testing.T) {
	d := NewDAG()
	_ = d.Add(dagItem("a", time.Now().UTC()))
	if err := d.AddEdge("a", "a"); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("AddEdge(a,a) error = %v, want ErrCycleDetected", err)
	}
}

func TestDAGTransitiveCycleRejected(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		_ = d.Add(dagItem(id, now.Add(time.Duration(i)*time.Millisecond)))
	}
	if err := d.AddEdge("a", "b"); err != nil {
		t.Fatalf("AddEdge(a,b) error = %v", err)
	}
	if err := d.AddEdge("b", "c"); err != nil {
		t.Fatalf("AddEdge(b,c) error = %v", err)
	}
	if err := d.AddEdge("c", "a"); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("AddEdge(c,a) error = %v, want ErrCycleDetected", err)
	}
}

func TestDAGUnlocksDependentOnLastDependency(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("dep1", now))
	_ = d.Add(dagItem("dep2", now.Add(time.Millisecond)))
	_ = d.Add(dagItem("x", now.Add(2*time.Millisecond), "dep1", "dep2"))

	got, ok := d.Get("x")
	if !ok || got.Status != StatusBlocked {
		t.Fatalf("x status = %+v, want blocked", got)
	}

	updates, err := d.MarkComplete("dep1")
	if err != nil {
		t.Fatalf("MarkComplete(dep1) error = %v", err)
	}
	if len(updates) != 1 || updates[0].NowReady {
		t.Fatalf("updates after dep1 = %+v, want x not yet ready", updates)
	}

	updates, err = d.MarkComplete("dep2")
	if err != nil {
		t.Fatalf("MarkComplete(dep2) error = %v", err)
	}
	if len(updates) != 1 || !updates[0].NowReady || updates[0].TaskID != "x" {
		t.Fatalf("updates after dep2 = %+v, want x now ready", updates)
	}
	got, _ = d.Get("x")
	if got.Status != StatusQueued {
		t.Fatalf("x status after unlock = %q, want %q", got.Status, StatusQueued)
	}
}

func TestDAGReadyOrderedByAddedAt(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("second", now.Add(time.Millisecond)))
	_ = d.Add(dagItem("third", now.Add(2*time.Millisecond), "second"))
	_ = d.Add(dagItem("first", now))

	ready := d.Ready()
	if len(ready) != 2 {
		t.Fatalf("Ready() len = %d, want 2", len(ready))
	}
	if ready[0].TaskID != "first" || ready[1].TaskID != "second" {
		t.Fatalf("Ready() order = [%s %s], want added-at order", ready[0].TaskID, ready[1].TaskID)
	}
}

func TestDAGMarkFailedSkipsTransitiveDependents(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("root", now))
	_ = d.Add(dagItem("child", now.Add(time.Millisecond), "root"))
	_ = d.Add(dagItem("grandchild", now.Add(2*time.Millisecond), "child"))
	_ = d.Add(dagItem("unrelated", now.Add(3*time.Millisecond)))

	skipped, err := d.MarkFailed("root", true)
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if len(skipped) != 2 {
		t.Fatalf("skipped = %v, want child and grandchild", skipped)
	}
	for _, id := range []string{"child", "grandchild"} {
		got, _ := d.Get(id)
		if got.Status != StatusSkipped {
			t.Fatalf("%s status = %q, want %q", id, got.Status, StatusSkipped)
		}
	}
	got, _ := d.Get("unrelated")
	if got.Status != StatusQueued {
		t.Fatalf("unrelated status = %q, want untouched %q", got.Status, StatusQueued)
	}
}

func TestDAGMarkFailedWithoutSkipLeavesDependentsBlocked(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("root", now))
	_ = d.Add(dagItem("child", now.Add(time.Millisecond), "root"))

	skipped, err := d.MarkFailed("root", false)
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped = %v, want none", skipped)
	}
	got, _ := d.Get("child")
	if got.Status != StatusBlocked {
		t.Fatalf("child status = %q, want %q", got.Status, StatusBlocked)
	}
}

func TestDAGAddUnknownDependency(t *testing.T) {
	d := NewDAG()
	err := d.Add(dagItem("x", time.Now().UTC(), "ghost"))
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("Add() with unknown dep error = %v, want ErrItemNotFound", err)
	}
}

func TestDAGVisualizeListsEveryNode(t *testing.T) {
	d := NewDAG()
	now := time.Now().UTC()
	_ = d.Add(dagItem("build", now))
	_ = d.Add(dagItem("test", now.Add(time.Millisecond), "build"))
	_ = d.Add(dagItem("deploy", now.Add(2*time.Millisecond), "test"))

	out := d.Visualize()
	for _, id := range []string{"build", "test", "deploy"} {
		if !strings.Contains(out, id) {
			t.Fatalf("Visualize() missing %q:\n%s", id, out)
		}
	}
	if !strings.Contains(out, "waiting on") {
		t.Fatalf("Visualize() missing blocked annotation:\n%s", out)
	}
}
