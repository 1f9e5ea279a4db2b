package stack

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Classification Tests
// =============================================================================

func TestClassifyExistence(t *testing.T) {
	tests := []struct {
		status string
		want   ExistenceState
	}{
		{"", Absent},
		{"DELETE_COMPLETE", Absent},
		{"CREATE_IN_PROGRESS", PresentInProgress},
		{"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", PresentInProgress},
		{"UPDATE_ROLLBACK_IN_PROGRESS", PresentInProgress},
		{"REVIEW_IN_PROGRESS", PresentInProgress},
		{"CREATE_COMPLETE", PresentStable},
		{"UPDATE_COMPLETE", PresentStable},
		{"UPDATE_ROLLBACK_COMPLETE", PresentStable},
		{"ROLLBACK_COMPLETE", PresentStable},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyExistence(tt.status))
		})
	}
}

func TestClassifyOperation(t *testing.T) {
	tests := []struct {
		status string
		want   OperationState
	}{
		{"", StateSubmitted},
		{"CREATE_IN_PROGRESS", StateInProgress},
		{"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", StateInProgress},
		{"ROLLBACK_IN_PROGRESS", StateInProgress},
		{"CREATE_COMPLETE", StateSucceeded},
		{"UPDATE_COMPLETE", StateSucceeded},
		{"CREATE_FAILED", StateFailed},
		{"UPDATE_ROLLBACK_FAILED", StateFailed},
		{"ROLLBACK_FAILED", StateFailed},
		{"DELETE_COMPLETE", StateFailed},
		{"ROLLBACK_COMPLETE", StateRolledBack},
		{"UPDATE_ROLLBACK_COMPLETE", StateRolledBack},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOperation(tt.status))
		})
	}
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestOperationState_IsTerminal(t *testing.T) {
	assert.False(t, StateSubmitted.IsTerminal())
	assert.False(t, StateInProgress.IsTerminal())
	assert.True(t, StateSucceeded.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateRolledBack.IsTerminal())
}

func TestOperationState_CanTransitionTo(t *testing.T) {
	assert.True(t, StateSubmitted.CanTransitionTo(StateInProgress))
	assert.True(t, StateInProgress.CanTransitionTo(StateRolledBack))
	assert.False(t, StateInProgress.CanTransitionTo(StateSubmitted))
	assert.False(t, StateSucceeded.CanTransitionTo(StateInProgress))
	assert.False(t, StateFailed.CanTransitionTo(StateSucceeded))
}

func TestNewOperation(t *testing.T) {
	op := NewOperation("api-dev", KindUpdate, "tok", false)
	assert.Equal(t, StateSubmitted, op.State)

	noop := NewOperation("api-dev", KindUpdate, "tok", true)
	assert.Equal(t, StateSucceeded, noop.State)
	assert.True(t, noop.State.IsTerminal())
}

// =============================================================================
// DecideSubmission Tests
// =============================================================================

func TestDecideSubmission(t *testing.T) {
	create := DecideSubmission(Handle{Name: "s", State: Absent})
	assert.True(t, create.Valid)
	assert.Equal(t, KindCreate, create.Kind)

	update := DecideSubmission(Handle{Name: "s", State: PresentStable})
	assert.True(t, update.Valid)
	assert.Equal(t, KindUpdate, update.Kind)

	busy := DecideSubmission(Handle{Name: "s", State: PresentInProgress, RawStatus: "UPDATE_IN_PROGRESS"})
	assert.False(t, busy.Valid)
	assert.Contains(t, busy.ErrorReason, "UPDATE_IN_PROGRESS")
}

// =============================================================================
// Error Tests
// =============================================================================

func TestStackSubmissionError_Is(t *testing.T) {
	concurrent := &StackSubmissionError{Kind: KindConcurrentOperation, Stack: "s"}
	generic := &StackSubmissionError{Kind: KindGeneric, Stack: "s", Err: errors.New("boom")}

	assert.ErrorIs(t, concurrent, ErrConcurrentOperation)
	assert.ErrorIs(t, concurrent, ErrSubmission)
	assert.NotErrorIs(t, generic, ErrConcurrentOperation)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", generic), ErrSubmission)
	assert.Contains(t, generic.Error(), "boom")
}

func TestMonitorTimeoutError(t *testing.T) {
	err := &MonitorTimeoutError{Stack: "s", Token: "tok", LastState: StateInProgress, LastStatus: "UPDATE_IN_PROGRESS", Elapsed: 90 * time.Second}
	assert.ErrorIs(t, err, ErrMonitorTimeout)
	assert.Contains(t, err.Error(), "tok")
	assert.Contains(t, err.Error(), "in-progress")
}

func TestStackOperationFailedError(t *testing.T) {
	err := &StackOperationFailedError{Stack: "s", Token: "tok", State: StateRolledBack, Status: "UPDATE_ROLLBACK_COMPLETE", Reason: "Bucket already exists"}
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Contains(t, err.Error(), "Bucket already exists")
}
