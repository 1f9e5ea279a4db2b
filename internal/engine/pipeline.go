// Package engine sequences the deployment pipeline: a build phase that
// validates the descriptor and merges the template, and a deploy phase that
// uploads artifacts, drives the stack operation and cleans up.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Phases and Steps
// =============================================================================

// Phase names.
const (
	PhaseBuild  = "build"
	PhaseDeploy = "deploy"
)

// Step names.
const (
	StepPrepare         = "prepare"
	StepUploadArtifacts = "uploadArtifacts"
	StepUpdateStack     = "updateStack"
	StepCleanup         = "cleanup"
)

// Outcome is the result of a pipeline invocation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means the deploy phase was not run on purpose.
	OutcomeSkipped Outcome = "skipped"
)

// StepFunc runs one step against the run state.
type StepFunc func(ctx context.Context, run *Run) error

// LifecycleStep is one entry of the ordered lifecycle table.
type LifecycleStep struct {
	Phase string
	Step  string
	Run   StepFunc
}

// Name returns "phase:step".
func (s LifecycleStep) Name() string {
	return s.Phase + ":" + s.Step
}

// =============================================================================
// Errors
// =============================================================================

// ErrStepOutOfOrder is returned when a step runs before the run state it
// depends on exists.
var ErrStepOutOfOrder = errors.New("step invoked out of order")

// PipelineError reports the step a pipeline stopped in and the remote
// identifiers involved at that point.
type PipelineError struct {
	Phase  string
	Step   string
	Bucket string
	Stack  string
	Token  string
	Err    error
}

func (e *PipelineError) Error() string {
	var ids []string
	if e.Bucket != "" {
		ids = append(ids, "bucket="+e.Bucket)
	}
	if e.Stack != "" {
		ids = append(ids, "stack="+e.Stack)
	}
	if e.Token != "" {
		ids = append(ids, "token="+e.Token)
	}
	if len(ids) == 0 {
		return fmt.Sprintf("%s/%s: %v", e.Phase, e.Step, e.Err)
	}
	return fmt.Sprintf("%s/%s [%s]: %v", e.Phase, e.Step, strings.Join(ids, " "), e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func outOfOrder(step, missing string) error {
	return fmt.Errorf("%w: %s needs %s", ErrStepOutOfOrder, step, missing)
}
