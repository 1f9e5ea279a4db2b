package engine

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/stackdeploy/internal/shell/store"
)

// History failures never fail a run; they are logged and the pipeline
// carries on.

func (o *Orchestrator) recordStart(ctx context.Context, run *Run) {
	if o.cfg.History == nil {
		return
	}
	rec := newRecord(run, store.OutcomeRunning)
	if err := o.cfg.History.CreateRun(ctx, rec); err != nil {
		o.logger.Warn("failed to record run start", "run", run.ID, "error", err)
		return
	}
	run.record = rec
}

func (o *Orchestrator) recordFinish(ctx context.Context, run *Run, outcome store.Outcome, failedStep string, runErr error) {
	if o.cfg.History == nil || run.record == nil {
		return
	}
	rec := run.record
	fillRecord(rec, run)
	rec.Outcome = outcome
	rec.FailedStep = failedStep
	if runErr != nil {
		var perr *PipelineError
		if errors.As(runErr, &perr) {
			runErr = perr.Err
		}
		rec.ErrorMessage = runErr.Error()
	}
	finished := o.now()
	rec.FinishedAt = &finished

	// The run may have been cancelled; the record should still land.
	ctx = context.WithoutCancel(ctx)
	if err := o.cfg.History.UpdateRun(ctx, rec); err != nil {
		o.logger.Warn("failed to record run result", "run", run.ID, "error", err)
	}
}

func (o *Orchestrator) recordSkipped(ctx context.Context, run *Run) {
	if o.cfg.History == nil {
		return
	}
	rec := newRecord(run, store.OutcomeSkipped)
	finished := o.now()
	rec.FinishedAt = &finished
	if err := o.cfg.History.CreateRun(ctx, rec); err != nil {
		o.logger.Warn("failed to record skipped run", "run", run.ID, "error", err)
	}
}

func newRecord(run *Run, outcome store.Outcome) *store.RunRecord {
	d := run.Descriptor
	rec := &store.RunRecord{
		ID:           run.ID,
		DeploymentID: d.DeploymentID(),
		Service:      d.Service,
		Stage:        d.Stage,
		Region:       d.Region,
		StackName:    run.StackName(),
		Outcome:      outcome,
		StartedAt:    run.StartedAt,
	}
	fillRecord(rec, run)
	return rec
}

func fillRecord(rec *store.RunRecord, run *Run) {
	rec.Bucket = run.BucketName
	rec.ArtifactDirectory = run.ArtifactDirectory
	if run.Operation != nil {
		rec.OperationToken = run.Operation.Token
	}
}

// History lists the latest recorded runs of a deployment, newest first.
func (o *Orchestrator) History(ctx context.Context, deploymentID string, limit int) ([]store.RunRecord, error) {
	if o.cfg.History == nil {
		return nil, nil
	}
	return o.cfg.History.ListRuns(ctx, deploymentID, store.ListOptions{Limit: limit})
}

// RollbackTarget returns the artifact directory of the newest succeeded
// run, the directory a rollback would redeploy from.
func (o *Orchestrator) RollbackTarget(ctx context.Context, deploymentID string) (string, time.Time, error) {
	if o.cfg.History == nil {
		return "", time.Time{}, store.ErrNotFound
	}
	rec, err := o.cfg.History.LatestSucceeded(ctx, deploymentID)
	if err != nil {
		return "", time.Time{}, err
	}
	return rec.ArtifactDirectory, rec.StartedAt, nil
}
