package strategy

import "github.com/raghavared/agent-maestro/internal/ds"

// Builtin returns the registry populated with the closed strategy catalog.
// The tables are total over the statuses each strategy can reach: any
// transition not listed is rejected, never coerced.
//
// `skip` is terminal for queue items; a task that should run again goes
// through fail with retry, which re-queues it instead.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	all := []Strategy{
		{
			ID:               "simple",
			Description:      "Agent decides freely; no managed data structure.",
			Kind:             ds.KindNone,
			CommandNamespace: "task",
			AllowedCommands:  []string{"list", "get", "update", "complete", "fail"},
			Transitions:      map[ds.ItemStatus][]ds.ItemStatus{},
			IsDefault:        true,
		},
		{
			ID:               "queue",
			Description:      "FIFO queue; retryable failures re-enter at the tail.",
			Kind:             ds.KindQueue,
			CommandNamespace: "queue",
			AllowedCommands:  []string{"top", "start", "complete", "fail", "skip", "list", "add"},
			Transitions: map[ds.ItemStatus][]ds.ItemStatus{
				ds.StatusQueued:     {ds.StatusProcessing, ds.StatusSkipped},
				ds.StatusProcessing: {ds.StatusCompleted, ds.StatusFailed, ds.StatusQueued},
			},
		},
		{
			ID:               "stack",
			Description:      "LIFO stack; push injects subtasks for depth-first expansion.",
			Kind:             ds.KindStack,
			CommandNamespace: "stack",
			AllowedCommands:  []string{"top", "start", "complete", "fail", "push", "list"},
			Transitions: map[ds.ItemStatus][]ds.ItemStatus{
				ds.StatusQueued:     {ds.StatusProcessing},
				ds.StatusProcessing: {ds.StatusCompleted, ds.StatusFailed, ds.StatusQueued},
			},
		},
		{
			ID:               "priority",
			Description:      "Priority queue, highest first, FIFO among equals.",
			Kind:             ds.KindPriority,
			CommandNamespace: "priority",
			AllowedCommands:  []string{"top", "start", "complete", "fail", "add", "bump", "list"},
			Transitions: map[ds.ItemStatus][]ds.ItemStatus{
				ds.StatusQueued:     {ds.StatusProcessing},
				ds.StatusProcessing: {ds.StatusCompleted, ds.StatusFailed, ds.StatusQueued},
			},
		},
		{
			ID:               "dag",
			Description:      "Dependency graph; items unblock as prerequisites complete.",
			Kind:             ds.KindDAG,
			CommandNamespace: "dag",
			AllowedCommands:  []string{"ready", "start", "complete", "fail", "add", "status", "visualize"},
			Transitions: map[ds.ItemStatus][]ds.ItemStatus{
				ds.StatusBlocked:    {ds.StatusQueued, ds.StatusSkipped},
				ds.StatusQueued:     {ds.StatusProcessing, ds.StatusSkipped},
				ds.StatusProcessing: {ds.StatusCompleted, ds.StatusFailed},
			},
		},
	}
	for _, s := range all {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}
