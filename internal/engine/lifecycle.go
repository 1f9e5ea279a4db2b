package engine

import (
	"context"
	"fmt"
)

// Lifecycle returns the pipeline steps in execution order. A host that
// triggers steps one at a time walks this table; each step checks its own
// prerequisites on the Run, so out-of-order calls fail with
// ErrStepOutOfOrder instead of acting on missing state.
func (o *Orchestrator) Lifecycle() []LifecycleStep {
	return []LifecycleStep{
		{Phase: PhaseBuild, Step: StepPrepare, Run: o.Build},
		{Phase: PhaseDeploy, Step: StepPrepare, Run: o.Prepare},
		{Phase: PhaseDeploy, Step: StepUploadArtifacts, Run: o.UploadArtifacts},
		{Phase: PhaseDeploy, Step: StepUpdateStack, Run: o.UpdateStack},
		{Phase: PhaseDeploy, Step: StepCleanup, Run: o.Cleanup},
	}
}

// Invoke runs the lifecycle step named "phase:step".
func (o *Orchestrator) Invoke(ctx context.Context, name string, run *Run) error {
	for _, s := range o.Lifecycle() {
		if s.Name() == name {
			o.logger.Debug("invoking step", "step", name, "run", run.ID)
			return s.Run(ctx, run)
		}
	}
	return fmt.Errorf("unknown lifecycle step %q", name)
}
