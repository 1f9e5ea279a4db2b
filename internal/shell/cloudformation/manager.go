package cloudformation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/artpar/stackdeploy/internal/core/stack"
)

// Manager is the Stack Lifecycle Manager.
type Manager struct {
	svc      StackService
	newToken func() string
	logger   *slog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(svc StackService, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		svc:      svc,
		newToken: func() string { return "stackdeploy-" + uuid.NewString() },
		logger:   logger.With("component", "stack_manager"),
	}
}

// Submit creates the stack if absent or updates it if stable. A stack with
// an operation in progress is rejected without a create or update call.
// req.StackName must be set; req.Token is assigned here.
func (m *Manager) Submit(ctx context.Context, req Request) (stack.Operation, error) {
	handle, err := m.svc.Describe(ctx, req.StackName)
	if err != nil {
		return stack.Operation{}, &stack.StackSubmissionError{Kind: stack.KindGeneric, Stack: req.StackName, Err: err}
	}

	decision := stack.DecideSubmission(handle)
	if !decision.Valid {
		m.logger.Warn("refusing to submit", "stack", req.StackName, "status", handle.RawStatus)
		return stack.Operation{}, &stack.StackSubmissionError{
			Kind:  stack.KindConcurrentOperation,
			Stack: req.StackName,
			Err:   errors.New(decision.ErrorReason),
		}
	}

	req.Token = m.newToken()
	logger := m.logger.With("stack", req.StackName, "token", req.Token, "kind", decision.Kind)

	switch decision.Kind {
	case stack.KindCreate:
		token, err := m.svc.Create(ctx, req)
		if err != nil {
			return stack.Operation{}, submissionError(req, err)
		}
		logger.Info("stack create submitted")
		return stack.NewOperation(req.StackName, stack.KindCreate, token, false), nil

	default:
		res, err := m.svc.Update(ctx, req)
		if err != nil {
			return stack.Operation{}, submissionError(req, err)
		}
		logger.Info("stack update submitted", "noop", res.Noop)
		return stack.NewOperation(req.StackName, stack.KindUpdate, res.Token, res.Noop), nil
	}
}

func submissionError(req Request, err error) *stack.StackSubmissionError {
	kind := stack.KindGeneric
	if errors.Is(err, ErrServiceConcurrent) {
		kind = stack.KindConcurrentOperation
	}
	return &stack.StackSubmissionError{Kind: kind, Stack: req.StackName, Token: req.Token, Err: err}
}
