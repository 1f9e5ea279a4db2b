package cloudformation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/artpar/stackdeploy/internal/core/stack"
)

// Monitor defaults.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollInterval = 30 * time.Second
	DefaultMonitorTimeout  = 30 * time.Minute
)

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// Interval is the first wait between polls.
	Interval time.Duration
	// MaxInterval caps the wait between polls.
	MaxInterval time.Duration
	// Timeout bounds the whole wait.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result is the terminal observation of an operation.
type Result struct {
	Operation stack.Operation
	Status    Status
	Polls     int
}

// Monitor is the Stack Monitor. It polls an operation until it reaches a
// terminal state, the timeout elapses, or the context is cancelled.
// Cancelling stops polling only; the remote operation keeps running.
type Monitor struct {
	svc    StackService
	opts   MonitorOptions
	logger *slog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(svc StackService, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = max(opts.Interval, DefaultMaxPollInterval)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultMonitorTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{svc: svc, opts: opts, logger: logger.With("component", "stack_monitor")}
}

func (m *Monitor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.Interval
	b.MaxInterval = m.opts.MaxInterval
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Await drives op to a terminal state.
//
// A noop update is already succeeded and returns without polling. A failed
// or rolled-back operation returns *stack.StackOperationFailedError; running
// out of time returns *stack.MonitorTimeoutError with the last state seen.
func (m *Monitor) Await(ctx context.Context, op stack.Operation) (Result, error) {
	logger := m.logger.With("stack", op.Stack, "token", op.Token)
	if op.Noop {
		logger.Info("no changes to apply")
		op.State = stack.StateSucceeded
		return Result{Operation: op, Status: Status{State: stack.StateSucceeded}}, nil
	}

	start := m.opts.Now()
	b := m.newBackOff()
	result := Result{Operation: op, Status: Status{State: op.State}}

	for {
		status, err := m.svc.PollStatus(ctx, op.Stack, op.Token)
		result.Polls++
		if err != nil {
			return result, fmt.Errorf("poll stack %s operation %s (last state %s): %w",
				op.Stack, op.Token, result.Operation.State, err)
		}

		if result.Operation.State.CanTransitionTo(status.State) {
			if status.State != result.Operation.State {
				logger.Info("stack operation state changed", "from", result.Operation.State, "to", status.State, "status", status.RawStatus)
			}
			result.Operation.State = status.State
		}
		result.Status = status

		switch result.Operation.State {
		case stack.StateSucceeded:
			logger.Info("stack operation succeeded", "status", status.RawStatus, "polls", result.Polls)
			return result, nil
		case stack.StateFailed, stack.StateRolledBack:
			return result, &stack.StackOperationFailedError{
				Stack:  op.Stack,
				Token:  op.Token,
				State:  result.Operation.State,
				Status: status.RawStatus,
				Reason: status.Reason,
			}
		}

		elapsed := m.opts.Now().Sub(start)
		remaining := m.opts.Timeout - elapsed
		if remaining <= 0 {
			return result, &stack.MonitorTimeoutError{
				Stack:      op.Stack,
				Token:      op.Token,
				LastState:  result.Operation.State,
				LastStatus: status.RawStatus,
				Elapsed:    elapsed,
			}
		}

		wait := min(b.NextBackOff(), remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("stopped waiting for stack %s operation %s (last state %s): %w",
				op.Stack, op.Token, result.Operation.State, ctx.Err())
		case <-timer.C:
		}
	}
}
