package ds

import "sort"

// PriorityQueue keeps items ordered by priority descending, with insertion
// time ascending as the tie break so equal priorities drain FIFO.
type PriorityQueue struct {
	items []Item
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

func (p *PriorityQueue) Kind() Kind     { return KindPriority }
func (p *PriorityQueue) Size() int      { return len(p.items) }
func (p *PriorityQueue) IsEmpty() bool  { return len(p.items) == 0 }
func (p *PriorityQueue) Remaining() int { return remainingOf(p.items) }
func (p *PriorityQueue) Items() []Item  { return cloneItems(p.items) }

func (p *PriorityQueue) Get(taskID string) (Item, bool) {
	idx := findIndex(p.items, taskID)
	if idx < 0 {
		return Item{}, false
	}
	return p.items[idx].Clone(), true
}

func (p *PriorityQueue) Peek() *Item {
	for i := range p.items {
		if p.items[i].Status == StatusQueued {
			out := p.items[i].Clone()
			return &out
		}
	}
	return nil
}

// Advance is extract-max: the highest-priority queued item becomes the
// processing item.
func (p *PriorityQueue) Advance() *Item {
	for i := range p.items {
		if p.items[i].Status == StatusQueued {
			p.items[i].Status = StatusProcessing
			out := p.items[i].Clone()
			return &out
		}
	}
	return nil
}

func (p *PriorityQueue) Add(item Item) error {
	if findIndex(p.items, item.TaskID) >= 0 {
		return ErrDuplicateItem
	}
	p.items = append(p.items, item)
	p.resort()
	return nil
}

// IncreasePriority raises an item's priority by delta and re-sorts in place.
// It reports whether the relative order actually changed.
func (p *PriorityQueue) IncreasePriority(taskID string, delta int) (bool, error) {
	idx := findIndex(p.items, taskID)
	if idx < 0 {
		return false, ErrItemNotFound
	}
	if delta <= 0 {
		delta = 1
	}
	before := p.order()
	p.items[idx].Priority += delta
	p.resort()
	after := p.order()
	for i := range before {
		if before[i] != after[i] {
			return true, nil
		}
	}
	return false, nil
}

// Requeue returns a retried item to queued status at its priority position.
func (p *PriorityQueue) Requeue(taskID string) error {
	idx := findIndex(p.items, taskID)
	if idx < 0 {
		return ErrItemNotFound
	}
	p.items[idx].Status = StatusQueued
	p.items[idx].EndedAt = nil
	p.resort()
	return nil
}

func (p *PriorityQueue) SetStatus(taskID string, status ItemStatus) error {
	return applyStatus(p.items, taskID, status)
}

func (p *PriorityQueue) Stats() map[ItemStatus]int { return statsOf(p.items) }

func (p *PriorityQueue) Snapshot(currentTaskID string) Snapshot {
	return snapshotOf(KindPriority, p.items, currentTaskID)
}

func (p *PriorityQueue) resort() {
	sort.SliceStable(p.items, func(i, j int) bool {
		if p.items[i].Priority != p.items[j].Priority {
			return p.items[i].Priority > p.items[j].Priority
		}
		return p.items[i].AddedAt.Before(p.items[j].AddedAt)
	})
}

func (p *PriorityQueue) order() []string {
	out := make([]string, len(p.items))
	for i := range p.items {
		out[i] = p.items[i].TaskID
	}
	return out
}
