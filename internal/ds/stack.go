package ds

// Stack is the LIFO container: push prepends, so the top is index 0 and
// depth-first expansion is a push of subtasks onto the front.
type Stack struct {
	items []Item
}

func NewStack() *Stack {
	return &Stack{}
}

func (s *Stack) Kind() Kind     { return KindStack }
func (s *Stack) Size() int      { return len(s.items) }
func (s *Stack) IsEmpty() bool  { return len(s.items) == 0 }
func (s *Stack) Remaining() int { return remainingOf(s.items) }
func (s *Stack) Items() []Item  { return cloneItems(s.items) }

func (s *Stack) Get(taskID string) (Item, bool) {
	idx := findIndex(s.items, taskID)
	if idx < 0 {
		return Item{}, false
	}
	return s.items[idx].Clone(), true
}

func (s *Stack) Peek() *Item {
	for i := range s.items {
		if s.items[i].Status == StatusQueued {
			out := s.items[i].Clone()
			return &out
		}
	}
	return nil
}

func (s *Stack) Advance() *Item {
	for i := range s.items {
		if s.items[i].Status == StatusQueued {
			s.items[i].Status = StatusProcessing
			out := s.items[i].Clone()
			return &out
		}
	}
	return nil
}

// Add pushes onto the top of the stack.
func (s *Stack) Add(item Item) error {
	if findIndex(s.items, item.TaskID) >= 0 {
		return ErrDuplicateItem
	}
	s.items = append([]Item{item}, s.items...)
	return nil
}

// Requeue returns a retried item to queued status at the top of the stack.
func (s *Stack) Requeue(taskID string) error {
	idx := findIndex(s.items, taskID)
	if idx < 0 {
		return ErrItemNotFound
	}
	item := s.items[idx]
	item.Status = StatusQueued
	item.EndedAt = nil
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.items = append([]Item{item}, s.items...)
	return nil
}

func (s *Stack) SetStatus(taskID string, status ItemStatus) error {
	return applyStatus(s.items, taskID, status)
}

func (s *Stack) Stats() map[ItemStatus]int { return statsOf(s.items) }

func (s *Stack) Snapshot(currentTaskID string) Snapshot {
	return snapshotOf(KindStack, s.items, currentTaskID)
}
