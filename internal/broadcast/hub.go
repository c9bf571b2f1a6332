package broadcast

import (
	"sync"
	"time"
)

// Type is the closed enum of broadcast event types.
type Type string

const (
	TypeSessionCreated Type = "session:created"
	TypeSessionUpdated Type = "session:updated"
	TypeSessionDeleted Type = "session:deleted"
	TypeTaskUpdated    Type = "task:updated"

	TypeItemAdded          Type = "ds:item_added"
	TypeItemRemoved        Type = "ds:item_removed"
	TypeItemStatusChanged  Type = "ds:item_status_changed"
	TypeCurrentItemChanged Type = "ds:current_item_changed"
	TypeReordered          Type = "ds:reordered"
	TypeDAGUnlocked        Type = "ds:dag_unlocked"

	// TypeSyncSnapshot opens every observer attachment with the full state,
	// closing any gap from a disconnection window.
	TypeSyncSnapshot Type = "sync:snapshot"
)

// Event is one notification fanned out to observers. Data carries the full
// updated snapshot, never a diff, so observers are idempotent to replay and
// tolerant of dropped or out-of-order delivery.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// DependentReady is one re-evaluated dependent in a ds:dag_unlocked payload.
type DependentReady struct {
	TaskID   string `json:"task_id"`
	NowReady bool   `json:"now_ready"`
}

// DAGUnlocked is the ds:dag_unlocked payload.
type DAGUnlocked struct {
	CompletedTaskID string           `json:"completed_task_id"`
	Dependents      []DependentReady `json:"dependents"`
}

// Hub fans every published event out to all attached observers. Publish
// never blocks: a saturated observer's event is dropped and counted, which
// full-snapshot payloads plus resync-on-attach make safe.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int

	dropHook func(Type)
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// SetDropHook installs a callback invoked for each dropped event, used for
// metrics. Must be called before the first Subscribe.
func (h *Hub) SetDropHook(hook func(Type)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropHook = hook
}

// Subscribe attaches an observer. The caller owns the cancel func and must
// invoke it when done; the channel closes on cancel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *Hub) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, evt := range events {
		for _, ch := range h.subs {
			select {
			case ch <- evt:
			default:
				if h.dropHook != nil {
					h.dropHook(evt.Type)
				}
			}
		}
	}
}

func (h *Hub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// New builds an event stamped now.
func New(t Type, sessionID string, data any) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
