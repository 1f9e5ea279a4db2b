// Package cloudformation submits stack operations and drives them to a
// terminal state.
// This is part of the Imperative Shell - handles I/O with the stack service.
package cloudformation

import (
	"context"
	"errors"

	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/core/template"
)

var (
	// ErrServiceConcurrent is returned by a StackService when the service
	// rejected a request because another operation holds the stack.
	ErrServiceConcurrent = errors.New("stack is locked by another operation")
)

// Request is a create or update request.
type Request struct {
	StackName string
	// Token is the operation token sent as the client request token.
	Token string
	// Exactly one of TemplateBody and TemplateURL is set.
	TemplateBody string
	TemplateURL  string
	Parameters   []template.ParameterValue
	Tags         map[string]string
}

// UpdateResult is the outcome of an update request.
type UpdateResult struct {
	Token string
	// Noop is set when the service reported there was nothing to update.
	Noop bool
}

// Status is one observation of an operation.
type Status struct {
	State     stack.OperationState
	RawStatus string
	// Reason is the failure reason reported by the service, if any.
	Reason string
}

// StackService is the remote stack service.
type StackService interface {
	Describe(ctx context.Context, stackName string) (stack.Handle, error)
	Create(ctx context.Context, req Request) (string, error)
	Update(ctx context.Context, req Request) (UpdateResult, error)
	PollStatus(ctx context.Context, stackName, token string) (Status, error)
	Outputs(ctx context.Context, stackName string) (map[string]string, error)
}
