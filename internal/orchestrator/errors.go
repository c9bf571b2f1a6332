package orchestrator

import (
	"errors"
	"fmt"

	"github.com/raghavared/agent-maestro/internal/ds"
)

var (
	// ErrNoDataStructure rejects container verbs on a strategy without one.
	ErrNoDataStructure = errors.New("strategy has no data structure")

	// ErrNoCurrentItem rejects a current-item verb while nothing is processing.
	ErrNoCurrentItem = errors.New("no item is currently processing")

	// ErrAlreadyProcessing rejects a second start while an item is in flight.
	ErrAlreadyProcessing = errors.New("an item is already processing")
)

// CommandNotAllowedError rejects a command outside the strategy's allowed
// set. The message enumerates the full allowed set so a confused worker can
// correct itself from the rejection alone.
type CommandNotAllowedError struct {
	StrategyID string
	Command    string
	Allowed    string
}

func (e *CommandNotAllowedError) Error() string {
	return fmt.Sprintf("command %q is not allowed for strategy %q; allowed: %s", e.Command, e.StrategyID, e.Allowed)
}

// InvalidTransitionError rejects an item status change outside the
// strategy's transition table.
type InvalidTransitionError struct {
	TaskID  string
	From    ds.ItemStatus
	To      ds.ItemStatus
	Allowed []ds.ItemStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("item %s cannot move %s -> %s; allowed targets: %v", e.TaskID, e.From, e.To, e.Allowed)
}

// AlreadyTerminalError rejects a completion or failure of an item that
// already reached a terminal status. The container is left untouched.
type AlreadyTerminalError struct {
	TaskID string
	Status ds.ItemStatus
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("item %s is already %s", e.TaskID, e.Status)
}

// OrphanedItemError marks an activated item whose task id no longer exists
// in the task store. Start absorbs it by skipping the item and moving on.
type OrphanedItemError struct {
	SessionID string
	TaskID    string
}

func (e *OrphanedItemError) Error() string {
	return fmt.Sprintf("session %s holds item %s with no backing task", e.SessionID, e.TaskID)
}
