package ds

import (
	"fmt"
	"sort"
)

// DAG holds items as nodes in an adjacency-list structure addressed by task
// id: an arena slice in insertion order plus an id index. Edges point from a
// prerequisite to its dependents; the relation is acyclic at all times.
type DAG struct {
	arena []Item
	index map[string]int
}

// DependentUpdate reports one direct dependent re-evaluated after a
// completion. NowReady is true when the dependent flipped blocked -> queued
// in that same call.
type DependentUpdate struct {
	TaskID   string `json:"task_id"`
	NowReady bool   `json:"now_ready"`
}

func NewDAG() *DAG {
	return &DAG{index: make(map[string]int)}
}

func (d *DAG) Kind() Kind     { return KindDAG }
func (d *DAG) Size() int      { return len(d.arena) }
func (d *DAG) IsEmpty() bool  { return len(d.arena) == 0 }
func (d *DAG) Remaining() int { return remainingOf(d.arena) }
func (d *DAG) Items() []Item  { return cloneItems(d.arena) }

func (d *DAG) Get(taskID string) (Item, bool) {
	idx, ok := d.index[taskID]
	if !ok {
		return Item{}, false
	}
	return d.arena[idx].Clone(), true
}

// EdgeCount returns the number of dependency edges in the graph.
func (d *DAG) EdgeCount() int {
	n := 0
	for i := range d.arena {
		n += len(d.arena[i].Dependencies)
	}
	return n
}

func (d *DAG) Peek() *Item {
	ready := d.Ready()
	if len(ready) == 0 {
		return nil
	}
	out := ready[0]
	return &out
}

func (d *DAG) Advance() *Item {
	ready := d.Ready()
	if len(ready) == 0 {
		return nil
	}
	idx := d.index[ready[0].TaskID]
	d.arena[idx].Status = StatusProcessing
	out := d.arena[idx].Clone()
	return &out
}

// Add inserts a node. Dependencies listed on the item must already exist;
// the node enters blocked unless every dependency is already completed.
func (d *DAG) Add(item Item) error {
	if _, ok := d.index[item.TaskID]; ok {
		return ErrDuplicateItem
	}
	for _, dep := range item.Dependencies {
		if _, ok := d.index[dep]; !ok {
			return fmt.Errorf("dependency %q: %w", dep, ErrItemNotFound)
		}
	}
	item.Status = StatusQueued
	if !d.depsSatisfied(item.Dependencies) {
		item.Status = StatusBlocked
	}
	d.index[item.TaskID] = len(d.arena)
	d.arena = append(d.arena, item)
	for _, dep := range item.Dependencies {
		di := d.index[dep]
		d.arena[di].Dependents = append(d.arena[di].Dependents, item.TaskID)
	}
	return nil
}

// AddEdge makes `to` depend on `from`. The edge is rejected atomically with
// ErrCycleDetected when `from` is already reachable from `to`; on rejection
// the graph is unchanged. Edges between existing nodes are an engine-level
// operation: the command surface only declares dependencies at node-add
// time, so callers wiring edges after the fact go through this directly.
func (d *DAG) AddEdge(from, to string) error {
	fi, ok := d.index[from]
	if !ok {
		return fmt.Errorf("edge source %q: %w", from, ErrItemNotFound)
	}
	ti, ok := d.index[to]
	if !ok {
		return fmt.Errorf("edge target %q: %w", to, ErrItemNotFound)
	}
	if from == to || d.reachable(to, from) {
		return fmt.Errorf("edge %s -> %s: %w", from, to, ErrCycleDetected)
	}
	for _, dep := range d.arena[ti].Dependencies {
		if dep == from {
			return nil
		}
	}
	d.arena[ti].Dependencies = append(d.arena[ti].Dependencies, from)
	d.arena[fi].Dependents = append(d.arena[fi].Dependents, to)
	if d.arena[ti].Status == StatusQueued && !d.depsSatisfied(d.arena[ti].Dependencies) {
		d.arena[ti].Status = StatusBlocked
	}
	return nil
}

// Ready returns all items whose dependencies are satisfied and whose own
// status is queued, ordered by added-at (insertion order breaks ties).
func (d *DAG) Ready() []Item {
	out := make([]Item, 0, len(d.arena))
	for i := range d.arena {
		if d.arena[i].Status == StatusQueued && d.depsSatisfied(d.arena[i].Dependencies) {
			out = append(out, d.arena[i].Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// DependencyStatus reports whether every dependency of the item is completed.
func (d *DAG) DependencyStatus(taskID string) (bool, error) {
	idx, ok := d.index[taskID]
	if !ok {
		return false, ErrItemNotFound
	}
	return d.depsSatisfied(d.arena[idx].Dependencies), nil
}

// MarkComplete transitions the item to completed and re-evaluates every
// direct dependent, unblocking those whose dependencies are now all
// completed.
func (d *DAG) MarkComplete(taskID string) ([]DependentUpdate, error) {
	idx, ok := d.index[taskID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if err := applyStatus(d.arena, taskID, StatusCompleted); err != nil {
		return nil, err
	}
	updates := make([]DependentUpdate, 0, len(d.arena[idx].Dependents))
	for _, dep := range d.arena[idx].Dependents {
		di := d.index[dep]
		update := DependentUpdate{TaskID: dep}
		if d.arena[di].Status == StatusBlocked && d.depsSatisfied(d.arena[di].Dependencies) {
			d.arena[di].Status = StatusQueued
			update.NowReady = true
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// MarkFailed transitions the item to failed. With skipDependents set, every
// transitive dependent is marked skipped: breadth-first over the dependents
// graph, each node visited once. The graph is acyclic so no cycle guard is
// needed.
func (d *DAG) MarkFailed(taskID string, skipDependents bool) ([]string, error) {
	idx, ok := d.index[taskID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if err := applyStatus(d.arena, taskID, StatusFailed); err != nil {
		return nil, err
	}
	if !skipDependents {
		return nil, nil
	}

	var skipped []string
	visited := map[string]bool{taskID: true}
	frontier := append([]string(nil), d.arena[idx].Dependents...)
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		di := d.index[id]
		if !d.arena[di].Status.Terminal() {
			_ = applyStatus(d.arena, id, StatusSkipped)
			skipped = append(skipped, id)
		}
		frontier = append(frontier, d.arena[di].Dependents...)
	}
	return skipped, nil
}

func (d *DAG) SetStatus(taskID string, status ItemStatus) error {
	return applyStatus(d.arena, taskID, status)
}

func (d *DAG) Stats() map[ItemStatus]int { return statsOf(d.arena) }

func (d *DAG) Snapshot(currentTaskID string) Snapshot {
	return snapshotOf(KindDAG, d.arena, currentTaskID)
}

func (d *DAG) depsSatisfied(deps []string) bool {
	for _, dep := range deps {
		di, ok := d.index[dep]
		if !ok || d.arena[di].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// reachable reports whether target can be reached from start by following
// dependent edges. Bounded depth-first traversal with a visited set.
func (d *DAG) reachable(start, target string) bool {
	visited := make(map[string]bool, len(d.arena))
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		idx, ok := d.index[id]
		if !ok {
			continue
		}
		stack = append(stack, d.arena[idx].Dependents...)
	}
	return false
}
