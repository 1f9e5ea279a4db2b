// Package cfntest provides an in-memory StackService for tests.
package cfntest

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/core/template"
	"github.com/artpar/stackdeploy/internal/shell/cloudformation"
)

// ErrNoSuchStack is returned for calls on a stack that was never created.
var ErrNoSuchStack = errors.New("stack does not exist")

// Default status progressions after a submission.
var (
	CreateSucceeds = []string{"CREATE_IN_PROGRESS", "CREATE_COMPLETE"}
	UpdateSucceeds = []string{"UPDATE_IN_PROGRESS", "UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", "UPDATE_COMPLETE"}
)

type fakeStack struct {
	status     string
	body       string
	parameters []template.ParameterValue
	script     []string
	outputs    map[string]string
}

// Service is an in-memory StackService. An update with the same template
// body and parameters as the stored stack is a noop.
type Service struct {
	mu     sync.Mutex
	stacks map[string]*fakeStack
	calls  []string

	// CreateScript and UpdateScript are the statuses PollStatus walks
	// through after a submission; the last one sticks.
	CreateScript []string
	UpdateScript []string
	// Reason is reported for failed operations.
	Reason string

	DescribeErr error
	CreateErr   error
	UpdateErr   error
	PollErr     error
}

var _ cloudformation.StackService = (*Service)(nil)

// New creates an empty service.
func New() *Service {
	return &Service{
		stacks:       map[string]*fakeStack{},
		CreateScript: CreateSucceeds,
		UpdateScript: UpdateSucceeds,
	}
}

// SetStack seeds a stack with a status and template body.
func (s *Service) SetStack(name, status, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks[name] = &fakeStack{status: status, body: body, outputs: map[string]string{}}
}

// SetOutputs sets a stack's outputs.
func (s *Service) SetOutputs(name string, outputs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stacks[name]; ok {
		st.outputs = maps.Clone(outputs)
	}
}

// Status returns the current status of a stack, "" if absent.
func (s *Service) Status(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stacks[name]; ok {
		return st.status
	}
	return ""
}

// Body returns the stored template body of a stack.
func (s *Service) Body(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stacks[name]; ok {
		return st.body
	}
	return ""
}

// Parameters returns the parameters of the last accepted submission.
func (s *Service) Parameters(name string) []template.ParameterValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stacks[name]; ok {
		return slices.Clone(st.parameters)
	}
	return nil
}

// Calls returns the names of the methods called, in order.
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount counts calls of a method.
func (s *Service) CallCount(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

func (s *Service) Describe(_ context.Context, name string) (stack.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Describe")
	if s.DescribeErr != nil {
		return stack.Handle{}, s.DescribeErr
	}
	st, ok := s.stacks[name]
	if !ok {
		return stack.Handle{Name: name, State: stack.Absent}, nil
	}
	return stack.Handle{Name: name, State: stack.ClassifyExistence(st.status), RawStatus: st.status}, nil
}

func (s *Service) Create(_ context.Context, req cloudformation.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Create")
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	if _, exists := s.stacks[req.StackName]; exists {
		return "", cloudformation.ErrServiceConcurrent
	}
	s.stacks[req.StackName] = &fakeStack{
		status:     "CREATE_IN_PROGRESS",
		body:       req.TemplateBody,
		parameters: slices.Clone(req.Parameters),
		script:     slices.Clone(s.CreateScript),
		outputs:    map[string]string{},
	}
	return req.Token, nil
}

func (s *Service) Update(_ context.Context, req cloudformation.Request) (cloudformation.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Update")
	if s.UpdateErr != nil {
		return cloudformation.UpdateResult{}, s.UpdateErr
	}
	st, ok := s.stacks[req.StackName]
	if !ok {
		return cloudformation.UpdateResult{}, ErrNoSuchStack
	}
	if stack.ClassifyExistence(st.status) == stack.PresentInProgress {
		return cloudformation.UpdateResult{}, cloudformation.ErrServiceConcurrent
	}
	if st.body == req.TemplateBody && req.TemplateURL == "" && reflect.DeepEqual(st.parameters, req.Parameters) {
		return cloudformation.UpdateResult{Token: req.Token, Noop: true}, nil
	}
	st.status = "UPDATE_IN_PROGRESS"
	st.body = req.TemplateBody
	st.parameters = slices.Clone(req.Parameters)
	st.script = slices.Clone(s.UpdateScript)
	return cloudformation.UpdateResult{Token: req.Token}, nil
}

func (s *Service) PollStatus(_ context.Context, name, _ string) (cloudformation.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "PollStatus")
	if s.PollErr != nil {
		return cloudformation.Status{}, s.PollErr
	}
	st, ok := s.stacks[name]
	if !ok {
		return cloudformation.Status{}, ErrNoSuchStack
	}
	if len(st.script) > 0 {
		st.status = st.script[0]
		if len(st.script) > 1 {
			st.script = st.script[1:]
		}
	}
	status := cloudformation.Status{State: stack.ClassifyOperation(st.status), RawStatus: st.status}
	if status.State == stack.StateFailed || status.State == stack.StateRolledBack {
		status.Reason = s.Reason
	}
	return status, nil
}

func (s *Service) Outputs(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Outputs")
	st, ok := s.stacks[name]
	if !ok {
		return nil, ErrNoSuchStack
	}
	return maps.Clone(st.outputs), nil
}
