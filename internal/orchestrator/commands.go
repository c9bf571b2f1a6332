package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/store"
)

// Command is the wire form of one instruction from a worker. Command holds
// "<namespace> <verb>"; the remaining fields are verb arguments and unused
// ones are ignored.
type Command struct {
	Command        string            `json:"command"`
	TaskID         string            `json:"task_id,omitempty"`
	Title          string            `json:"title,omitempty"`
	Outcome        string            `json:"outcome,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Status         string            `json:"status,omitempty"`
	Priority       int               `json:"priority,omitempty"`
	Delta          int               `json:"delta,omitempty"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	Retry          bool              `json:"retry,omitempty"`
	SkipDependents bool              `json:"skip_dependents,omitempty"`
	AddedBy        string            `json:"added_by,omitempty"`
	Message        string            `json:"message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Result is the answer to an executed command. Exactly the fields relevant
// to the verb are populated.
type Result struct {
	Item    *ds.Item           `json:"item,omitempty"`
	Items   []ds.Item          `json:"items,omitempty"`
	Session *SessionView       `json:"session,omitempty"`
	Task    *store.TaskRecord  `json:"task,omitempty"`
	Tasks   []store.TaskRecord `json:"tasks,omitempty"`
	Ready   *bool              `json:"ready,omitempty"`
	Output  string             `json:"output,omitempty"`
}

// Execute parses "<namespace> <verb>", gates it against the session's
// strategy and dispatches. The session namespace (stop, progress,
// needs_input, milestone) is open to every strategy; everything else must
// match the strategy's own command surface.
func (m *Manager) Execute(ctx context.Context, sessionID string, cmd Command) (*Result, error) {
	started := time.Now()
	namespace, verb, err := splitCommand(cmd.Command)
	if err != nil {
		return nil, err
	}

	res, err := m.dispatch(ctx, sessionID, namespace, verb, cmd)
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	if m.metrics != nil {
		m.metrics.ObserveCommand(namespace, verb, outcome, time.Since(started))
	}
	return res, err
}

func (m *Manager) dispatch(ctx context.Context, sessionID, namespace, verb string, cmd Command) (*Result, error) {
	if namespace == "session" {
		return m.dispatchSession(ctx, sessionID, verb, cmd)
	}

	strat, err := m.Strategy(sessionID)
	if err != nil {
		return nil, err
	}
	if namespace != strat.CommandNamespace {
		return nil, &CommandNotAllowedError{
			StrategyID: strat.ID,
			Command:    namespace + " " + verb,
			Allowed:    strat.CommandList(),
		}
	}
	if namespace == "task" {
		return m.dispatchTask(ctx, sessionID, verb, cmd)
	}
	return m.dispatchStructure(ctx, sessionID, verb, cmd)
}

func (m *Manager) dispatchSession(ctx context.Context, sessionID, verb string, cmd Command) (*Result, error) {
	switch verb {
	case "stop":
		view, err := m.StopSession(ctx, sessionID, cmd.Reason)
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "fail":
		view, err := m.FailSession(ctx, sessionID, cmd.Reason)
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "progress":
		if err := m.ReportProgress(sessionID, cmd.TaskID, cmd.Message, cmd.Metadata); err != nil {
			return nil, err
		}
		return &Result{}, nil
	case "needs_input":
		if err := m.NeedsInput(sessionID, cmd.TaskID, cmd.Message, cmd.Metadata); err != nil {
			return nil, err
		}
		return &Result{}, nil
	case "milestone":
		if err := m.Milestone(sessionID, cmd.TaskID, cmd.Message, cmd.Metadata); err != nil {
			return nil, err
		}
		return &Result{}, nil
	default:
		return nil, fmt.Errorf("unknown session verb %q", verb)
	}
}

// dispatchTask serves the simple strategy, where the task store is the
// source of truth and no container exists.
func (m *Manager) dispatchTask(ctx context.Context, sessionID, verb string, cmd Command) (*Result, error) {
	strat, err := m.Strategy(sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateCommand(strat, verb); err != nil {
		return nil, err
	}

	switch verb {
	case "list":
		tasks, err := m.ListTasks(ctx, 0)
		if err != nil {
			return nil, err
		}
		return &Result{Tasks: tasks}, nil
	case "get":
		task, err := m.GetTask(ctx, cmd.TaskID)
		if err != nil {
			return nil, err
		}
		return &Result{Task: &task}, nil
	case "update":
		task, err := m.UpdateTaskStatus(ctx, cmd.TaskID, store.UserStatus(cmd.Status))
		if err != nil {
			return nil, err
		}
		return &Result{Task: &task}, nil
	case "complete":
		task, err := m.UpdateTaskStatus(ctx, cmd.TaskID, store.UserStatusDone)
		if err != nil {
			return nil, err
		}
		return &Result{Task: &task}, nil
	case "fail":
		// A failed free-form task goes back to the user's plate.
		task, err := m.UpdateTaskStatus(ctx, cmd.TaskID, store.UserStatusTodo)
		if err != nil {
			return nil, err
		}
		return &Result{Task: &task}, nil
	default:
		return nil, fmt.Errorf("unknown task verb %q", verb)
	}
}

func (m *Manager) dispatchStructure(ctx context.Context, sessionID, verb string, cmd Command) (*Result, error) {
	strat, err := m.Strategy(sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateCommand(strat, verb); err != nil {
		return nil, err
	}

	switch verb {
	case "start":
		item, err := m.Start(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Item: item}, nil
	case "top", "ready":
		// Both read the next candidate; dag additionally lists all ready.
		if verb == "ready" && strat.Kind == ds.KindDAG {
			items, err := m.Ready(sessionID)
			if err != nil {
				return nil, err
			}
			return &Result{Items: items}, nil
		}
		item, err := m.Peek(sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Item: item}, nil
	case "complete":
		view, err := m.Complete(ctx, sessionID, cmd.TaskID, cmd.Outcome)
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "fail":
		view, err := m.Fail(ctx, sessionID, cmd.TaskID, cmd.Reason, FailOptions{
			Retry:          cmd.Retry,
			SkipDependents: cmd.SkipDependents,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "skip":
		view, err := m.Skip(ctx, sessionID, cmd.TaskID)
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "add", "push":
		view, err := m.Add(ctx, sessionID, cmd.TaskID, AddOptions{
			Priority:  cmd.Priority,
			DependsOn: cmd.DependsOn,
			AddedBy:   ds.AddedBy(cmd.AddedBy),
		})
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "bump":
		view, err := m.Bump(ctx, sessionID, cmd.TaskID, cmd.Delta)
		if err != nil {
			return nil, err
		}
		return &Result{Session: view}, nil
	case "list":
		items, err := m.List(sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Items: items}, nil
	case "status":
		ready, err := m.DependencyStatus(sessionID, cmd.TaskID)
		if err != nil {
			return nil, err
		}
		return &Result{Ready: &ready}, nil
	case "visualize":
		out, err := m.Visualize(sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Output: out}, nil
	default:
		return nil, &CommandNotAllowedError{
			StrategyID: strat.ID,
			Command:    strat.CommandNamespace + " " + verb,
			Allowed:    strat.CommandList(),
		}
	}
}

func splitCommand(raw string) (namespace, verb string, err error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("command must be \"<namespace> <verb>\", got %q", raw)
	}
	return fields[0], fields[1], nil
}
