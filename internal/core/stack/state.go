// Package stack models the remote stack and the lifecycle of one submitted
// stack operation.
// This is part of the Functional Core - all functions are pure with no I/O.
package stack

import "strings"

// =============================================================================
// Existence State
// =============================================================================

// ExistenceState is what the lifecycle manager needs to know about a stack
// before submitting.
type ExistenceState string

const (
	Absent            ExistenceState = "absent"
	PresentStable     ExistenceState = "present-stable"
	PresentInProgress ExistenceState = "present-in-progress"
)

// Handle identifies a remote stack.
type Handle struct {
	Name      string
	State     ExistenceState
	RawStatus string
}

// =============================================================================
// Operation State Machine
// =============================================================================

// OperationState is the lifecycle state of a submitted operation.
type OperationState string

const (
	StateSubmitted  OperationState = "submitted"
	StateInProgress OperationState = "in-progress"
	StateSucceeded  OperationState = "succeeded"
	StateFailed     OperationState = "failed"
	StateRolledBack OperationState = "rolled-back"
)

// IsTerminal reports whether no further transition is possible.
func (s OperationState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRolledBack:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a transition from the current state to the
// target state is valid.
//
// Valid transitions:
//   - submitted → in-progress, succeeded, failed, rolled-back
//   - in-progress → in-progress, succeeded, failed, rolled-back
//   - terminal → none
func (s OperationState) CanTransitionTo(target OperationState) bool {
	switch s {
	case StateSubmitted, StateInProgress:
		return target != StateSubmitted
	default:
		return false
	}
}

// OperationKind distinguishes creates from updates.
type OperationKind string

const (
	KindCreate OperationKind = "create"
	KindUpdate OperationKind = "update"
)

// Operation is a submitted create or update.
type Operation struct {
	Stack string
	Kind  OperationKind
	// Token is the unique operation token sent with the request.
	Token string
	// Noop marks an update the stack service reported as having nothing
	// to change. It is already succeeded.
	Noop  bool
	State OperationState
}

// NewOperation returns a submitted operation, or a succeeded one for a noop.
func NewOperation(stackName string, kind OperationKind, token string, noop bool) Operation {
	state := StateSubmitted
	if noop {
		state = StateSucceeded
	}
	return Operation{Stack: stackName, Kind: kind, Token: token, Noop: noop, State: state}
}

// =============================================================================
// Remote Status Classification
// =============================================================================

// ClassifyExistence maps a CloudFormation stack status to an existence state.
// An empty status means the stack does not exist.
//
// REVIEW_IN_PROGRESS is a stack created by a change set that never executed.
// ROLLBACK_COMPLETE stacks can only be deleted, which the stack service
// reports on update; they are treated as stable here.
func ClassifyExistence(status string) ExistenceState {
	switch {
	case status == "" || status == "DELETE_COMPLETE":
		return Absent
	case strings.HasSuffix(status, "_IN_PROGRESS"):
		return PresentInProgress
	default:
		return PresentStable
	}
}

// ClassifyOperation maps a CloudFormation stack status to the state of the
// operation that produced it.
//
// Examples:
//
//	ClassifyOperation("CREATE_IN_PROGRESS")        // StateInProgress
//	ClassifyOperation("UPDATE_COMPLETE")           // StateSucceeded
//	ClassifyOperation("UPDATE_ROLLBACK_COMPLETE")  // StateRolledBack
//	ClassifyOperation("CREATE_FAILED")             // StateFailed
func ClassifyOperation(status string) OperationState {
	switch {
	case status == "":
		return StateSubmitted
	case strings.HasSuffix(status, "ROLLBACK_COMPLETE"):
		return StateRolledBack
	case strings.HasSuffix(status, "_IN_PROGRESS"):
		return StateInProgress
	case strings.HasSuffix(status, "FAILED"):
		return StateFailed
	case status == "DELETE_COMPLETE":
		return StateFailed
	case strings.HasSuffix(status, "_COMPLETE"):
		return StateSucceeded
	default:
		return StateFailed
	}
}

// =============================================================================
// Submission Decision
// =============================================================================

// Decision is the outcome of planning a submission.
type Decision struct {
	Valid       bool
	Kind        OperationKind
	ErrorReason string
}

// DecideSubmission chooses create or update from the stack's existence
// state. A stack with an operation in progress is never submitted to.
func DecideSubmission(h Handle) Decision {
	switch h.State {
	case Absent:
		return Decision{Valid: true, Kind: KindCreate}
	case PresentStable:
		return Decision{Valid: true, Kind: KindUpdate}
	case PresentInProgress:
		return Decision{ErrorReason: "stack " + h.Name + " has an operation in progress (" + h.RawStatus + ")"}
	default:
		return Decision{ErrorReason: "unknown stack state " + string(h.State)}
	}
}
