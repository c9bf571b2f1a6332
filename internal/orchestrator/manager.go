package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raghavared/agent-maestro/internal/broadcast"
	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/observability"
	"github.com/raghavared/agent-maestro/internal/session"
	"github.com/raghavared/agent-maestro/internal/store"
	"github.com/raghavared/agent-maestro/internal/strategy"
	"github.com/raghavared/agent-maestro/internal/timeline"
)

const defaultStoreTimeout = 2 * time.Second

// SessionView is the full per-session snapshot carried by query responses
// and broadcast payloads. Observers always receive the whole thing, never a
// diff.
type SessionView struct {
	Session       *session.Session `json:"session"`
	DataStructure *ds.Snapshot     `json:"data_structure,omitempty"`
}

// StructureUpdate is the payload of every ds:* broadcast: the task that
// moved plus the complete post-mutation snapshot.
type StructureUpdate struct {
	TaskID   string      `json:"task_id,omitempty"`
	Snapshot ds.Snapshot `json:"snapshot"`
}

// FailOptions controls a fail verb. Retry re-queues the item at its
// strategy's re-entry position instead of terminating it; SkipDependents
// cascades a dag failure to every transitive dependent.
type FailOptions struct {
	Retry          bool
	SkipDependents bool
}

// AddOptions controls an add verb.
type AddOptions struct {
	Priority  int
	DependsOn []string
	AddedBy   ds.AddedBy
}

// runtime is the per-session execution state. Its mutex is the exclusion
// scope: commands against one session serialize here, unrelated sessions
// never contend.
type runtime struct {
	mu        sync.Mutex
	strat     strategy.Strategy
	sess      *session.Session
	container ds.Container
	current   string
}

// Manager owns every session runtime and is the single entry point for
// commands. Mutations follow one discipline: validate, mutate under the
// session lock, mirror to the store asynchronously, append to the timeline,
// then publish collected events after the lock is released.
type Manager struct {
	registry     *strategy.Registry
	store        store.Store
	hub          *broadcast.Hub
	metrics      *observability.Metrics
	storeTimeout time.Duration

	mu       sync.RWMutex
	runtimes map[string]*runtime
}

func NewManager(registry *strategy.Registry, st store.Store, hub *broadcast.Hub, metrics *observability.Metrics, storeTimeout time.Duration) *Manager {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Manager{
		registry:     registry,
		store:        st,
		hub:          hub,
		metrics:      metrics,
		storeTimeout: storeTimeout,
		runtimes:     make(map[string]*runtime),
	}
}

// CreateSession spawns a session bound to the named strategy (the registry
// default when empty) and pre-populates its container from the initial task
// ids. Sessions always start in spawning.
func (m *Manager) CreateSession(ctx context.Context, strategyID string, taskIDs []string, addedBy ds.AddedBy) (*SessionView, error) {
	var strat strategy.Strategy
	var err error
	if strings.TrimSpace(strategyID) == "" {
		strat, err = m.registry.Default()
	} else {
		strat, err = m.registry.Get(strategyID)
	}
	if err != nil {
		return nil, err
	}
	if addedBy == "" {
		addedBy = ds.AddedByUser
	}

	sess := session.New(strat.ID, taskIDs)
	rt := &runtime{strat: strat, sess: sess}
	if strat.Kind != ds.KindNone {
		container, err := ds.New(strat.Kind)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		for _, taskID := range taskIDs {
			item := ds.Item{
				TaskID:  taskID,
				AddedAt: now,
				AddedBy: addedBy,
				Status:  ds.StatusQueued,
			}
			if err := container.Add(item); err != nil {
				return nil, fmt.Errorf("seed item %s: %w", taskID, err)
			}
		}
		rt.container = container
	}

	sess.AppendEvent(timeline.New(timeline.TypeSessionStarted, "", "session created", map[string]string{
		"strategy": strat.ID,
	}))
	m.observeTimeline(timeline.TypeSessionStarted)

	m.mu.Lock()
	m.runtimes[sess.ID] = rt
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}

	rt.mu.Lock()
	view := rt.viewLocked()
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(broadcast.New(broadcast.TypeSessionCreated, sess.ID, view))
	return view, nil
}

// Start activates the next candidate item. A nil item with a nil error
// means the container has nothing ready. Items whose backing task has
// vanished from the store are skipped in place and the next candidate is
// tried.
func (m *Manager) Start(ctx context.Context, sessionID string) (*ds.Item, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	item, events, err := m.startLocked(ctx, rt)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return item, err
}

func (m *Manager) startLocked(ctx context.Context, rt *runtime) (*ds.Item, []broadcast.Event, error) {
	var events []broadcast.Event

	if rt.container == nil {
		return nil, nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, "start"); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	if rt.current != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, rt.current)
	}

	for {
		item := rt.container.Advance()
		if item == nil {
			if settled := m.settleLocked(rt); len(settled) > 0 {
				return nil, append(events, settled...), nil
			}
			if rt.sess.Status == session.StatusWorking {
				if err := rt.sess.Transition(session.StatusIdle); err == nil {
					events = append(events, broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()))
				}
			}
			return nil, events, nil
		}

		exists, err := m.taskExists(ctx, item.TaskID)
		if err != nil {
			_ = rt.container.SetStatus(item.TaskID, ds.StatusQueued)
			return nil, events, err
		}
		if !exists {
			orphan := &OrphanedItemError{SessionID: rt.sess.ID, TaskID: item.TaskID}
			log.Printf("orchestrator: %v; marking item skipped", orphan)
			_ = rt.container.SetStatus(item.TaskID, ds.StatusSkipped)
			m.appendLocked(rt, timeline.New(timeline.TypeError, item.TaskID, orphan.Error(), map[string]string{
				"recovery": "skipped",
			}))
			events = append(events, broadcast.New(broadcast.TypeItemStatusChanged, rt.sess.ID, m.updateLocked(rt, item.TaskID)))
			continue
		}

		rt.current = item.TaskID
		if rt.sess.Status == session.StatusSpawning || rt.sess.Status == session.StatusIdle {
			if err := rt.sess.Transition(session.StatusWorking); err != nil {
				return nil, events, err
			}
		}
		m.appendLocked(rt, timeline.New(timeline.TypeTaskStarted, item.TaskID, "item activated", nil))
		m.persistTaskStatus(item.TaskID, store.UserStatusInProgress)
		events = append(events,
			broadcast.New(broadcast.TypeCurrentItemChanged, rt.sess.ID, m.updateLocked(rt, item.TaskID)),
			broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()),
		)
		return item, events, nil
	}
}

// Complete marks an item completed. An empty taskID targets the current
// item. Completing an item that already reached a terminal status returns
// *AlreadyTerminalError and leaves everything untouched.
func (m *Manager) Complete(ctx context.Context, sessionID, taskID, outcome string) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	view, events, err := m.completeLocked(rt, taskID, outcome)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return view, err
}

func (m *Manager) completeLocked(rt *runtime, taskID, outcome string) (*SessionView, []broadcast.Event, error) {
	if rt.container == nil {
		return nil, nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, "complete"); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	taskID, err := rt.resolveTarget(taskID)
	if err != nil {
		return nil, nil, err
	}
	item, ok := rt.container.Get(taskID)
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ds.ErrItemNotFound)
	}
	if item.Status.Terminal() {
		return nil, nil, &AlreadyTerminalError{TaskID: taskID, Status: item.Status}
	}
	if err := validateTransition(rt.strat, taskID, item.Status, ds.StatusCompleted); err != nil {
		return nil, nil, err
	}

	var events []broadcast.Event
	if dag, isDAG := rt.container.(*ds.DAG); isDAG {
		updates, err := dag.MarkComplete(taskID)
		if err != nil {
			return nil, nil, err
		}
		if len(updates) > 0 {
			unlocked := broadcast.DAGUnlocked{CompletedTaskID: taskID}
			for _, u := range updates {
				unlocked.Dependents = append(unlocked.Dependents, broadcast.DependentReady{TaskID: u.TaskID, NowReady: u.NowReady})
			}
			events = append(events, broadcast.New(broadcast.TypeDAGUnlocked, rt.sess.ID, unlocked))
		}
	} else {
		if err := rt.container.SetStatus(taskID, ds.StatusCompleted); err != nil {
			return nil, nil, err
		}
	}

	meta := map[string]string{}
	if outcome != "" {
		meta["outcome"] = outcome
	}
	m.appendLocked(rt, timeline.New(timeline.TypeTaskCompleted, taskID, "item completed", meta))
	m.persistTaskStatus(taskID, store.UserStatusDone)

	if rt.current == taskID {
		rt.current = ""
		events = append(events, broadcast.New(broadcast.TypeCurrentItemChanged, rt.sess.ID, m.updateLocked(rt, "")))
	}
	events = append(events, broadcast.New(broadcast.TypeItemStatusChanged, rt.sess.ID, m.updateLocked(rt, taskID)))
	events = append(events, m.settleLocked(rt)...)
	events = append(events, broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()))
	return rt.viewLocked(), events, nil
}

// Fail marks an item failed, or re-queues it when opts.Retry is set and the
// strategy permits the processing -> queued transition. On a dag,
// opts.SkipDependents cascades a terminal failure to every transitive
// dependent.
func (m *Manager) Fail(ctx context.Context, sessionID, taskID, reason string, opts FailOptions) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	view, events, err := m.failLocked(rt, taskID, reason, opts)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return view, err
}

func (m *Manager) failLocked(rt *runtime, taskID, reason string, opts FailOptions) (*SessionView, []broadcast.Event, error) {
	if rt.container == nil {
		return nil, nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, "fail"); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	taskID, err := rt.resolveTarget(taskID)
	if err != nil {
		return nil, nil, err
	}
	item, ok := rt.container.Get(taskID)
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ds.ErrItemNotFound)
	}
	if item.Status.Terminal() {
		return nil, nil, &AlreadyTerminalError{TaskID: taskID, Status: item.Status}
	}
	target := ds.StatusFailed
	if opts.Retry {
		target = ds.StatusQueued
	}
	if err := validateTransition(rt.strat, taskID, item.Status, target); err != nil {
		return nil, nil, err
	}

	var events []broadcast.Event
	meta := map[string]string{"retry": strconv.FormatBool(opts.Retry)}
	if reason != "" {
		meta["reason"] = reason
	}

	if opts.Retry {
		if err := requeue(rt.container, taskID); err != nil {
			return nil, nil, err
		}
	} else if dag, isDAG := rt.container.(*ds.DAG); isDAG {
		skipped, err := dag.MarkFailed(taskID, opts.SkipDependents)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range skipped {
			m.appendLocked(rt, timeline.New(timeline.TypeTaskSkipped, id, "skipped: upstream dependency failed", nil))
			events = append(events, broadcast.New(broadcast.TypeItemStatusChanged, rt.sess.ID, m.updateLocked(rt, id)))
		}
	} else {
		if err := rt.container.SetStatus(taskID, ds.StatusFailed); err != nil {
			return nil, nil, err
		}
	}

	m.appendLocked(rt, timeline.New(timeline.TypeTaskFailed, taskID, "item failed", meta))
	if !opts.Retry {
		m.persistTaskStatus(taskID, store.UserStatusTodo)
	}

	if rt.current == taskID {
		rt.current = ""
		events = append(events, broadcast.New(broadcast.TypeCurrentItemChanged, rt.sess.ID, m.updateLocked(rt, "")))
	}
	events = append(events, broadcast.New(broadcast.TypeItemStatusChanged, rt.sess.ID, m.updateLocked(rt, taskID)))
	events = append(events, m.settleLocked(rt)...)
	events = append(events, broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()))
	return rt.viewLocked(), events, nil
}

// Skip marks a waiting item skipped. Skip is terminal: a skipped item never
// re-enters the structure.
func (m *Manager) Skip(ctx context.Context, sessionID, taskID string) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	view, events, err := m.skipLocked(rt, taskID)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return view, err
}

func (m *Manager) skipLocked(rt *runtime, taskID string) (*SessionView, []broadcast.Event, error) {
	if rt.container == nil {
		return nil, nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, "skip"); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	item, ok := rt.container.Get(taskID)
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ds.ErrItemNotFound)
	}
	if item.Status.Terminal() {
		return nil, nil, &AlreadyTerminalError{TaskID: taskID, Status: item.Status}
	}
	if err := validateTransition(rt.strat, taskID, item.Status, ds.StatusSkipped); err != nil {
		return nil, nil, err
	}
	if err := rt.container.SetStatus(taskID, ds.StatusSkipped); err != nil {
		return nil, nil, err
	}

	m.appendLocked(rt, timeline.New(timeline.TypeTaskSkipped, taskID, "item skipped", nil))
	events := []broadcast.Event{
		broadcast.New(broadcast.TypeItemStatusChanged, rt.sess.ID, m.updateLocked(rt, taskID)),
	}
	events = append(events, m.settleLocked(rt)...)
	events = append(events, broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()))
	return rt.viewLocked(), events, nil
}

// Add inserts a new item mid-flight: tail of a queue, top of a stack,
// priority position of a priority queue, or a dag node depending on
// existing nodes.
func (m *Manager) Add(ctx context.Context, sessionID, taskID string, opts AddOptions) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	view, events, err := m.addLocked(rt, taskID, opts)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return view, err
}

func (m *Manager) addLocked(rt *runtime, taskID string, opts AddOptions) (*SessionView, []broadcast.Event, error) {
	if rt.container == nil {
		return nil, nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, addVerb(rt.strat.Kind)); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, nil, errors.New("task_id is required")
	}
	if len(opts.DependsOn) > 0 && rt.strat.Kind != ds.KindDAG {
		return nil, nil, fmt.Errorf("dependencies are only supported by the dag strategy")
	}
	addedBy := opts.AddedBy
	if addedBy == "" {
		addedBy = ds.AddedByAgent
	}

	item := ds.Item{
		TaskID:       taskID,
		AddedAt:      time.Now().UTC(),
		AddedBy:      addedBy,
		Status:       ds.StatusQueued,
		Priority:     opts.Priority,
		Dependencies: append([]string(nil), opts.DependsOn...),
	}
	if err := rt.container.Add(item); err != nil {
		return nil, nil, err
	}
	if added, ok := rt.container.Get(taskID); ok && added.Status == ds.StatusBlocked {
		m.appendLocked(rt, timeline.New(timeline.TypeTaskBlocked, taskID, "waiting on dependencies", nil))
	}
	rt.sess.TaskIDs = append(rt.sess.TaskIDs, taskID)
	rt.sess.LastActivityAt = item.AddedAt

	events := []broadcast.Event{
		broadcast.New(broadcast.TypeItemAdded, rt.sess.ID, m.updateLocked(rt, taskID)),
		broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()),
	}
	return rt.viewLocked(), events, nil
}

// Bump raises an item's priority. A ds:reordered event is published only
// when the relative order actually changed.
func (m *Manager) Bump(ctx context.Context, sessionID, taskID string, delta int) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	view, events, err := m.bumpLocked(rt, taskID, delta)
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(events...)
	return view, err
}

func (m *Manager) bumpLocked(rt *runtime, taskID string, delta int) (*SessionView, []broadcast.Event, error) {
	if err := validateCommand(rt.strat, "bump"); err != nil {
		return nil, nil, err
	}
	if rt.sess.Status.Terminal() {
		return nil, nil, fmt.Errorf("session %s is %s: %w", rt.sess.ID, rt.sess.Status, session.ErrTerminalState)
	}
	pq, ok := rt.container.(*ds.PriorityQueue)
	if !ok {
		return nil, nil, ErrNoDataStructure
	}
	reordered, err := pq.IncreasePriority(taskID, delta)
	if err != nil {
		return nil, nil, err
	}
	rt.sess.LastActivityAt = time.Now().UTC()

	var events []broadcast.Event
	if reordered {
		events = append(events, broadcast.New(broadcast.TypeReordered, rt.sess.ID, m.updateLocked(rt, taskID)))
	}
	events = append(events, broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked()))
	return rt.viewLocked(), events, nil
}

// Peek returns the next candidate without activating it.
func (m *Manager) Peek(sessionID string) (*ds.Item, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.container == nil {
		return nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, peekVerb(rt.strat.Kind)); err != nil {
		return nil, err
	}
	return rt.container.Peek(), nil
}

// List returns every item in structure order.
func (m *Manager) List(sessionID string) ([]ds.Item, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.container == nil {
		return nil, ErrNoDataStructure
	}
	if err := validateCommand(rt.strat, "list"); err != nil {
		return nil, err
	}
	return rt.container.Items(), nil
}

// Ready returns every dag item whose dependencies are all completed.
func (m *Manager) Ready(sessionID string) ([]ds.Item, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := validateCommand(rt.strat, "ready"); err != nil {
		return nil, err
	}
	dag, ok := rt.container.(*ds.DAG)
	if !ok {
		return nil, ErrNoDataStructure
	}
	return dag.Ready(), nil
}

// DependencyStatus reports whether a dag item's dependencies are satisfied.
func (m *Manager) DependencyStatus(sessionID, taskID string) (bool, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return false, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := validateCommand(rt.strat, "status"); err != nil {
		return false, err
	}
	dag, ok := rt.container.(*ds.DAG)
	if !ok {
		return false, ErrNoDataStructure
	}
	return dag.DependencyStatus(taskID)
}

// Visualize renders the dag as an indented tree.
func (m *Manager) Visualize(sessionID string) (string, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return "", err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := validateCommand(rt.strat, "visualize"); err != nil {
		return "", err
	}
	dag, ok := rt.container.(*ds.DAG)
	if !ok {
		return "", ErrNoDataStructure
	}
	return dag.Visualize(), nil
}

// Snapshot returns the full session view. Reads take the same per-session
// exclusion as mutations, so a snapshot never observes a half-applied
// command.
func (m *Manager) Snapshot(sessionID string) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.viewLocked(), nil
}

// ListSessions returns a view of every live runtime, newest first.
func (m *Manager) ListSessions() []*SessionView {
	m.mu.RLock()
	runtimes := make([]*runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	m.mu.RUnlock()

	out := make([]*SessionView, 0, len(runtimes))
	for _, rt := range runtimes {
		rt.mu.Lock()
		out = append(out, rt.viewLocked())
		rt.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Session.CreatedAt.After(out[j].Session.CreatedAt)
	})
	return out
}

// StopSession halts a session from the outside. Stop is an ordinary
// serialized mutation: it waits for the in-flight command, never interrupts
// it.
func (m *Manager) StopSession(ctx context.Context, sessionID, reason string) (*SessionView, error) {
	return m.terminate(sessionID, session.StatusStopped, timeline.TypeSessionStopped, reason)
}

// FailSession moves a session to failed, for unrecoverable worker errors.
func (m *Manager) FailSession(ctx context.Context, sessionID, reason string) (*SessionView, error) {
	return m.terminate(sessionID, session.StatusFailed, timeline.TypeError, reason)
}

func (m *Manager) terminate(sessionID string, to session.Status, evtType timeline.Type, reason string) (*SessionView, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if err := rt.sess.Transition(to); err != nil {
		rt.mu.Unlock()
		return nil, err
	}
	if reason == "" {
		reason = fmt.Sprintf("session %s", to)
	}
	m.appendLocked(rt, timeline.New(evtType, "", reason, nil))
	rt.current = ""
	view := rt.viewLocked()
	rec := rt.recordLocked()
	rt.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.persistSession(rec)
	m.publish(broadcast.New(broadcast.TypeSessionUpdated, sessionID, view))
	return view, nil
}

// DeleteSession removes a terminal session from the manager and the store.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	if !rt.sess.Status.Terminal() {
		status := rt.sess.Status
		rt.mu.Unlock()
		return fmt.Errorf("session %s is %s; only terminal sessions can be deleted", sessionID, status)
	}
	rt.mu.Unlock()

	m.mu.Lock()
	delete(m.runtimes, sessionID)
	m.mu.Unlock()

	if m.store != nil {
		sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
		defer cancel()
		if err := m.store.DeleteSession(sctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("orchestrator: delete session %s from store: %v", sessionID, err)
		}
	}
	m.publish(broadcast.New(broadcast.TypeSessionDeleted, sessionID, nil))
	return nil
}

// ReportProgress appends a progress event to the session timeline.
func (m *Manager) ReportProgress(sessionID, taskID, message string, metadata map[string]string) error {
	return m.record(sessionID, timeline.New(timeline.TypeProgress, taskID, message, metadata))
}

// NeedsInput records that the worker is blocked on a human decision.
func (m *Manager) NeedsInput(sessionID, taskID, message string, metadata map[string]string) error {
	return m.record(sessionID, timeline.New(timeline.TypeNeedsInput, taskID, message, metadata))
}

// Milestone records a notable checkpoint in the session timeline.
func (m *Manager) Milestone(sessionID, taskID, message string, metadata map[string]string) error {
	return m.record(sessionID, timeline.New(timeline.TypeMilestone, taskID, message, metadata))
}

func (m *Manager) record(sessionID string, evt timeline.Event) error {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	if rt.sess.Status.Terminal() {
		status := rt.sess.Status
		rt.mu.Unlock()
		return fmt.Errorf("session %s is %s: %w", sessionID, status, session.ErrTerminalState)
	}
	m.appendLocked(rt, evt)
	view := rt.viewLocked()
	rec := rt.recordLocked()
	rt.mu.Unlock()

	m.persistSession(rec)
	m.publish(broadcast.New(broadcast.TypeSessionUpdated, sessionID, view))
	return nil
}

// CreateTask writes a new user task to the store.
func (m *Manager) CreateTask(ctx context.Context, title, description string) (store.TaskRecord, error) {
	if strings.TrimSpace(title) == "" {
		return store.TaskRecord{}, errors.New("title is required")
	}
	now := time.Now().UTC()
	task := store.TaskRecord{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		UserStatus:  store.UserStatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.store != nil {
		if err := m.store.SaveTask(ctx, task); err != nil {
			return store.TaskRecord{}, err
		}
	}
	m.publish(broadcast.New(broadcast.TypeTaskUpdated, "", task))
	return task, nil
}

// UpdateTaskStatus moves a user task to a new status. This is the whole of
// the simple strategy: the task store is the source of truth and no
// container is consulted.
func (m *Manager) UpdateTaskStatus(ctx context.Context, taskID string, status store.UserStatus) (store.TaskRecord, error) {
	if !store.ValidUserStatus(status) {
		return store.TaskRecord{}, fmt.Errorf("unknown task status %q", status)
	}
	if m.store == nil {
		return store.TaskRecord{}, errors.New("no task store configured")
	}
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return store.TaskRecord{}, err
	}
	task.UserStatus = status
	task.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveTask(ctx, task); err != nil {
		return store.TaskRecord{}, err
	}
	m.publish(broadcast.New(broadcast.TypeTaskUpdated, "", task))
	return task, nil
}

// GetTask reads a user task from the store.
func (m *Manager) GetTask(ctx context.Context, taskID string) (store.TaskRecord, error) {
	if m.store == nil {
		return store.TaskRecord{}, store.ErrNotFound
	}
	return m.store.GetTask(ctx, taskID)
}

// ListTasks reads user tasks from the store, newest first.
func (m *Manager) ListTasks(ctx context.Context, limit int) ([]store.TaskRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListTasks(ctx, limit)
}

// Strategy returns the strategy bound to a session.
func (m *Manager) Strategy(sessionID string) (strategy.Strategy, error) {
	rt, err := m.runtime(sessionID)
	if err != nil {
		return strategy.Strategy{}, err
	}
	return rt.strat, nil
}

// Registry exposes the strategy catalog for the query surface.
func (m *Manager) Registry() *strategy.Registry {
	return m.registry
}

// settleLocked auto-completes the session once every item is terminal.
func (m *Manager) settleLocked(rt *runtime) []broadcast.Event {
	if rt.container == nil || rt.container.IsEmpty() || rt.container.Remaining() > 0 {
		return nil
	}
	if rt.sess.Status.Terminal() {
		return nil
	}
	if rt.sess.Status == session.StatusSpawning {
		if err := rt.sess.Transition(session.StatusIdle); err != nil {
			return nil
		}
	}
	if err := rt.sess.Transition(session.StatusCompleted); err != nil {
		return nil
	}
	m.appendLocked(rt, timeline.New(timeline.TypeMilestone, "", "all items finished", nil))
	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	return []broadcast.Event{broadcast.New(broadcast.TypeSessionUpdated, rt.sess.ID, rt.viewLocked())}
}

func (m *Manager) runtime(sessionID string) (*runtime, error) {
	m.mu.RLock()
	rt, ok := m.runtimes[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrNotFound)
	}
	return rt, nil
}

func (m *Manager) taskExists(ctx context.Context, taskID string) (bool, error) {
	if m.store == nil {
		return true, nil
	}
	sctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	_, err := m.store.GetTask(sctx, taskID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("verify task %s: %w", taskID, err)
}

func (m *Manager) appendLocked(rt *runtime, evt timeline.Event) {
	rt.sess.AppendEvent(evt)
	m.observeTimeline(evt.Type)
}

func (m *Manager) observeTimeline(t timeline.Type) {
	if m.metrics != nil {
		m.metrics.ObserveTimelineEvent(string(t))
	}
}

func (m *Manager) updateLocked(rt *runtime, taskID string) StructureUpdate {
	return StructureUpdate{TaskID: taskID, Snapshot: rt.container.Snapshot(rt.current)}
}

func (m *Manager) publish(events ...broadcast.Event) {
	if len(events) == 0 {
		return
	}
	if m.metrics != nil {
		for _, ev := range events {
			m.metrics.SessionEvents.WithLabelValues(string(ev.Type)).Inc()
		}
	}
	if m.hub != nil {
		m.hub.Publish(events...)
	}
}

func (m *Manager) persistSession(rec store.SessionRecord) {
	if m.store == nil {
		return
	}
	go func(snapshot store.SessionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
		defer cancel()
		if err := m.store.SaveSession(ctx, snapshot); err != nil {
			log.Printf("orchestrator: persist session %s: %v", snapshot.ID, err)
		}
	}(rec)
}

// persistTaskStatus mirrors an item outcome onto the user task. Best
// effort: the session is authoritative for its own run, the mirror only
// keeps the task list honest.
func (m *Manager) persistTaskStatus(taskID string, status store.UserStatus) {
	if m.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
		defer cancel()
		task, err := m.store.GetTask(ctx, taskID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("orchestrator: mirror task %s: %v", taskID, err)
			}
			return
		}
		task.UserStatus = status
		task.UpdatedAt = time.Now().UTC()
		if err := m.store.SaveTask(ctx, task); err != nil {
			log.Printf("orchestrator: mirror task %s: %v", taskID, err)
		}
	}()
}

func (rt *runtime) resolveTarget(taskID string) (string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID != "" {
		return taskID, nil
	}
	if rt.current == "" {
		return "", ErrNoCurrentItem
	}
	return rt.current, nil
}

func (rt *runtime) viewLocked() *SessionView {
	view := &SessionView{Session: rt.sess.Clone()}
	if rt.container != nil {
		snap := rt.container.Snapshot(rt.current)
		view.DataStructure = &snap
	}
	return view
}

func (rt *runtime) recordLocked() store.SessionRecord {
	sess := rt.sess
	rec := store.SessionRecord{
		ID:             sess.ID,
		StrategyID:     sess.StrategyID,
		TaskIDs:        append([]string(nil), sess.TaskIDs...),
		Status:         sess.Status,
		Timeline:       append([]timeline.Event(nil), sess.Timeline...),
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
	}
	if sess.CompletedAt != nil {
		ts := *sess.CompletedAt
		rec.CompletedAt = &ts
	}
	if rt.container != nil {
		snap := rt.container.Snapshot(rt.current)
		rec.DataStructure = &snap
	}
	return rec
}

func validateCommand(strat strategy.Strategy, verb string) error {
	if !strat.AllowsCommand(strat.CommandNamespace, verb) {
		return &CommandNotAllowedError{
			StrategyID: strat.ID,
			Command:    strat.CommandNamespace + " " + verb,
			Allowed:    strat.CommandList(),
		}
	}
	return nil
}

func validateTransition(strat strategy.Strategy, taskID string, from, to ds.ItemStatus) error {
	if !strat.AllowsTransition(from, to) {
		return &InvalidTransitionError{
			TaskID:  taskID,
			From:    from,
			To:      to,
			Allowed: strat.AllowedFrom(from),
		}
	}
	return nil
}

func requeue(c ds.Container, taskID string) error {
	switch v := c.(type) {
	case *ds.Queue:
		return v.Requeue(taskID)
	case *ds.Stack:
		return v.Requeue(taskID)
	case *ds.PriorityQueue:
		return v.Requeue(taskID)
	default:
		return fmt.Errorf("%s: retry is not supported", c.Kind())
	}
}

func addVerb(kind ds.Kind) string {
	if kind == ds.KindStack {
		return "push"
	}
	return "add"
}

func peekVerb(kind ds.Kind) string {
	if kind == ds.KindDAG {
		return "ready"
	}
	return "top"
}
