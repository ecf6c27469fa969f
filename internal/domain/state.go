package domain

import "fmt"

// CoordinatorState is the lifecycle state of one coordinator attempt
type CoordinatorState string

const (
	StateIdle               CoordinatorState = "idle"
	StateAwaitingPermission CoordinatorState = "awaiting_permission"
	StateEnqueuing          CoordinatorState = "enqueuing"
	StateInProgress         CoordinatorState = "in_progress"
	StateVerifying          CoordinatorState = "verifying"
	StateSucceeded          CoordinatorState = "succeeded"
	StateFailed             CoordinatorState = "failed"
)

// stateTransitions lists allowed moves. Failed is reachable from every state,
// and a finished coordinator may start again.
var stateTransitions = map[CoordinatorState][]CoordinatorState{
	StateIdle:               {StateAwaitingPermission},
	StateAwaitingPermission: {StateEnqueuing, StateSucceeded, StateFailed, StateIdle},
	StateEnqueuing:          {StateInProgress, StateFailed, StateIdle},
	StateInProgress:         {StateVerifying, StateFailed, StateIdle},
	StateVerifying:          {StateSucceeded, StateFailed, StateIdle},
	StateSucceeded:          {StateIdle, StateAwaitingPermission},
	StateFailed:             {StateIdle, StateAwaitingPermission},
}

// CanTransition reports whether from may move to to
func CanTransition(from, to CoordinatorState) bool {
	if to == StateFailed || to == StateIdle {
		return true
	}
	for _, s := range stateTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error for a disallowed move
func ValidateTransition(from, to CoordinatorState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether the attempt has finished
func (s CoordinatorState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}
