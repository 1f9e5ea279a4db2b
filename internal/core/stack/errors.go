package stack

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrConcurrentOperation = errors.New("stack has an operation in progress")
	ErrSubmission          = errors.New("stack submission failed")
	ErrMonitorTimeout      = errors.New("timed out waiting for stack operation")
	ErrOperationFailed     = errors.New("stack operation failed")
)

// SubmissionKind classifies a StackSubmissionError.
type SubmissionKind string

const (
	KindConcurrentOperation SubmissionKind = "concurrentOperation"
	KindGeneric             SubmissionKind = "generic"
)

// StackSubmissionError reports a create or update that was not accepted.
type StackSubmissionError struct {
	Kind  SubmissionKind
	Stack string
	// Token is set when the request reached the stack service.
	Token string
	Err   error
}

func (e *StackSubmissionError) Error() string {
	msg := fmt.Sprintf("submit stack %s (%s)", e.Stack, e.Kind)
	if e.Token != "" {
		msg += fmt.Sprintf(" token %s", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StackSubmissionError) Unwrap() error {
	return e.Err
}

func (e *StackSubmissionError) Is(target error) bool {
	if target == ErrSubmission {
		return true
	}
	return target == ErrConcurrentOperation && e.Kind == KindConcurrentOperation
}

// MonitorTimeoutError is returned when an operation did not reach a terminal
// state in time. The remote operation may still be running.
type MonitorTimeoutError struct {
	Stack     string
	Token     string
	LastState OperationState
	// LastStatus is the raw remote status last observed.
	LastStatus string
	Elapsed    time.Duration
}

func (e *MonitorTimeoutError) Error() string {
	return fmt.Sprintf("stack %s operation %s still %s (%s) after %s; check the stack manually",
		e.Stack, e.Token, e.LastState, e.LastStatus, e.Elapsed.Round(time.Second))
}

func (e *MonitorTimeoutError) Is(target error) bool {
	return target == ErrMonitorTimeout
}

// StackOperationFailedError carries the reason reported by the stack service.
type StackOperationFailedError struct {
	Stack  string
	Token  string
	State  OperationState
	Status string
	Reason string
}

func (e *StackOperationFailedError) Error() string {
	msg := fmt.Sprintf("stack %s operation %s %s (%s)", e.Stack, e.Token, e.State, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StackOperationFailedError) Is(target error) bool {
	return target == ErrOperationFailed
}
