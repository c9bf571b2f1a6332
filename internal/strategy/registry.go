package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/raghavared/agent-maestro/internal/ds"
)

var (
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrNotFound          = errors.New("strategy not found")
	ErrNoDefault         = errors.New("no default strategy registered")
)

// Registry is the append-only catalog of strategies, built at process start
// and passed by reference into every strategy runtime. Register stores a
// deep copy and Get returns deep copies, so a registered strategy can never
// be mutated through either side.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]Strategy
	defaultID string
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Strategy)}
}

func (r *Registry) Register(s Strategy) error {
	if s.ID == "" {
		return errors.New("strategy id is required")
	}
	if s.Kind != ds.KindNone {
		if _, err := ds.New(s.Kind); err != nil {
			return fmt.Errorf("strategy %q: %w", s.ID, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("strategy %q: %w", s.ID, ErrDuplicateStrategy)
	}
	if s.IsDefault && r.defaultID != "" {
		return fmt.Errorf("strategy %q: default already set to %q", s.ID, r.defaultID)
	}
	r.byID[s.ID] = s.clone()
	if s.IsDefault {
		r.defaultID = s.ID
	}
	return nil
}

func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Strategy{}, fmt.Errorf("strategy %q: %w", id, ErrNotFound)
	}
	return s.clone(), nil
}

// Default returns the strategy flagged as default. A missing default is a
// startup misconfiguration, not a runtime condition.
func (r *Registry) Default() (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return Strategy{}, ErrNoDefault
	}
	return r.byID[r.defaultID].clone(), nil
}

// IsValidCommand is a pure lookup with no side effects.
func (r *Registry) IsValidCommand(id, namespace, verb string) (bool, error) {
	s, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return s.AllowsCommand(namespace, verb), nil
}

// IsValidTransition is a pure lookup with no side effects.
func (r *Registry) IsValidTransition(id string, from, to ds.ItemStatus) (bool, error) {
	s, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return s.AllowsTransition(from, to), nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.byID))
	for _, id := range r.idsLocked() {
		out = append(out, r.byID[id].clone())
	}
	return out
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
