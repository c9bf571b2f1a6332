package ds

// Queue is the FIFO container: enqueue appends, the next candidate is the
// first still-queued item from the front.
type Queue struct {
	items []Item
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Kind() Kind      { return KindQueue }
func (q *Queue) Size() int       { return len(q.items) }
func (q *Queue) IsEmpty() bool   { return len(q.items) == 0 }
func (q *Queue) Remaining() int  { return remainingOf(q.items) }
func (q *Queue) Items() []Item   { return cloneItems(q.items) }

func (q *Queue) Get(taskID string) (Item, bool) {
	idx := findIndex(q.items, taskID)
	if idx < 0 {
		return Item{}, false
	}
	return q.items[idx].Clone(), true
}

func (q *Queue) Peek() *Item {
	for i := range q.items {
		if q.items[i].Status == StatusQueued {
			out := q.items[i].Clone()
			return &out
		}
	}
	return nil
}

func (q *Queue) Advance() *Item {
	for i := range q.items {
		if q.items[i].Status == StatusQueued {
			q.items[i].Status = StatusProcessing
			out := q.items[i].Clone()
			return &out
		}
	}
	return nil
}

func (q *Queue) Add(item Item) error {
	if findIndex(q.items, item.TaskID) >= 0 {
		return ErrDuplicateItem
	}
	q.items = append(q.items, item)
	return nil
}

// Requeue returns a retried item to queued status and moves it to the tail,
// behind everything currently waiting.
func (q *Queue) Requeue(taskID string) error {
	idx := findIndex(q.items, taskID)
	if idx < 0 {
		return ErrItemNotFound
	}
	item := q.items[idx]
	item.Status = StatusQueued
	item.EndedAt = nil
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	q.items = append(q.items, item)
	return nil
}

func (q *Queue) SetStatus(taskID string, status ItemStatus) error {
	return applyStatus(q.items, taskID, status)
}

func (q *Queue) Stats() map[ItemStatus]int { return statsOf(q.items) }

func (q *Queue) Snapshot(currentTaskID string) Snapshot {
	return snapshotOf(KindQueue, q.items, currentTaskID)
}
