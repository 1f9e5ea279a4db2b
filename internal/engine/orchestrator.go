package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/stackdeploy/internal/core/artifact"
	"github.com/artpar/stackdeploy/internal/core/descriptor"
	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/core/template"
	"github.com/artpar/stackdeploy/internal/core/validation"
	"github.com/artpar/stackdeploy/internal/shell/cloudformation"
	"github.com/artpar/stackdeploy/internal/shell/metrics"
	"github.com/artpar/stackdeploy/internal/shell/provider"
	"github.com/artpar/stackdeploy/internal/shell/storage"
	"github.com/artpar/stackdeploy/internal/shell/store"
)

// =============================================================================
// Capabilities
// =============================================================================

// Preconditions checks a descriptor before any side effect.
type Preconditions interface {
	Validate(ctx context.Context, d descriptor.Descriptor) (provider.Identity, error)
}

// Storage is the Object Storage Gateway.
type Storage interface {
	EnsureBucket(ctx context.Context, name string) (storage.BucketRef, error)
	Upload(ctx context.Context, bucket storage.BucketRef, prefix string, blobs []storage.Blob) (storage.UploadResult, error)
	Cleanup(ctx context.Context, bucket storage.BucketRef, currentPrefix string, policy artifact.RetentionPolicy) (storage.CleanupResult, error)
}

// StackSubmitter is the Stack Lifecycle Manager.
type StackSubmitter interface {
	Submit(ctx context.Context, req cloudformation.Request) (stack.Operation, error)
}

// StackMonitor drives a submitted operation to a terminal state.
type StackMonitor interface {
	Await(ctx context.Context, op stack.Operation) (cloudformation.Result, error)
}

// OutputReader reads a stack's outputs.
type OutputReader interface {
	Outputs(ctx context.Context, stackName string) (map[string]string, error)
}

var (
	_ Preconditions  = (*Validator)(nil)
	_ Storage        = (*storage.Gateway)(nil)
	_ StackSubmitter = (*cloudformation.Manager)(nil)
	_ StackMonitor   = (*cloudformation.Monitor)(nil)
	_ OutputReader   = (cloudformation.StackService)(nil)
)

// =============================================================================
// Orchestrator
// =============================================================================

// Config wires the orchestrator's capabilities. History, Metrics and
// Outputs are optional.
type Config struct {
	Validator Preconditions
	Compiler  Compiler
	Storage   Storage
	Stacks    StackSubmitter
	Monitor   StackMonitor
	Outputs   OutputReader
	History   store.Store
	Metrics   *metrics.Recorder

	Retention artifact.RetentionPolicy
	// BaseDir resolves relative artifact paths.
	BaseDir string
	// Now defaults to time.Now. It is read once per run to name the
	// artifact directory.
	Now    func() time.Time
	Logger *slog.Logger
}

// Orchestrator runs the pipeline phases in order. It holds no per-run
// state; everything a step produces lives on the Run.
type Orchestrator struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Compiler == nil {
		cfg.Compiler = FileCompiler{BaseDir: cfg.BaseDir}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, now: now, logger: logger.With("component", "orchestrator")}
}

// Run is the state of one pipeline invocation.
type Run struct {
	ID         string
	Descriptor descriptor.Descriptor
	StartedAt  time.Time

	// Identity is set when the capability probe ran.
	Identity provider.Identity
	// Template is the build phase output.
	Template *template.Template

	BucketName        string
	Bucket            *storage.BucketRef
	ArtifactDirectory string
	Uploaded          *storage.UploadResult
	Operation         *stack.Operation
	Status            cloudformation.Status
	Outputs           map[string]string
	Cleanup           *storage.CleanupResult

	// Warnings collects non-fatal problems, such as stale artifacts that
	// could not be deleted.
	Warnings []string

	// stored tracks the blobs already written to the artifact directory
	// so a repeated upload step sends only the rest.
	stored   map[string]bool
	progress storage.UploadResult

	record *store.RunRecord
}

// StackName returns the stack the run targets.
func (r *Run) StackName() string {
	return r.Descriptor.ResolvedStackName()
}

// Result is the outcome of Deploy.
type Result struct {
	Outcome Outcome
	Run     *Run
	Message string
}

// NewRun starts the state of a new run.
func (o *Orchestrator) NewRun(d descriptor.Descriptor) *Run {
	return &Run{ID: uuid.NewString(), Descriptor: d, StartedAt: o.now()}
}

// Deploy runs the build phase, then the deploy phase unless the descriptor
// asks for no deploy, in which case the result is OutcomeSkipped.
func (o *Orchestrator) Deploy(ctx context.Context, d descriptor.Descriptor) (Result, error) {
	run := o.NewRun(d)

	if err := o.Build(ctx, run); err != nil {
		return Result{Outcome: OutcomeFailed, Run: run}, err
	}

	if d.NoDeploy {
		o.logger.Info("deploy phase skipped", "run", run.ID, "stack", run.StackName())
		o.recordSkipped(ctx, run)
		return Result{
			Outcome: OutcomeSkipped,
			Run:     run,
			Message: "build completed; deploy phase skipped (no-deploy)",
		}, nil
	}

	if err := o.DeployPhase(ctx, run); err != nil {
		return Result{Outcome: OutcomeFailed, Run: run}, err
	}
	return Result{Outcome: OutcomeSucceeded, Run: run}, nil
}

// DeployPhase runs the deploy steps of the lifecycle in order, stopping at
// the first failure. The run must have completed the build phase.
func (o *Orchestrator) DeployPhase(ctx context.Context, run *Run) error {
	o.recordStart(ctx, run)
	for _, s := range o.Lifecycle() {
		if s.Phase != PhaseDeploy {
			continue
		}
		if err := s.Run(ctx, run); err != nil {
			o.recordFinish(ctx, run, store.OutcomeFailed, s.Step, err)
			return err
		}
	}
	o.recordFinish(ctx, run, store.OutcomeSucceeded, "", nil)
	return nil
}

// =============================================================================
// Steps
// =============================================================================

// Build validates the descriptor and produces the merged template.
func (o *Orchestrator) Build(ctx context.Context, run *Run) error {
	return o.step(ctx, run, PhaseBuild, StepPrepare, o.build)
}

// Prepare re-validates, ensures the deployment bucket and names the
// artifact directory.
func (o *Orchestrator) Prepare(ctx context.Context, run *Run) error {
	return o.step(ctx, run, PhaseDeploy, StepPrepare, o.prepare)
}

// UploadArtifacts uploads the artifacts and the compiled template.
func (o *Orchestrator) UploadArtifacts(ctx context.Context, run *Run) error {
	return o.step(ctx, run, PhaseDeploy, StepUploadArtifacts, o.uploadArtifacts)
}

// UpdateStack submits the template and waits for the stack operation.
func (o *Orchestrator) UpdateStack(ctx context.Context, run *Run) error {
	return o.step(ctx, run, PhaseDeploy, StepUpdateStack, o.updateStack)
}

// Cleanup removes stale artifact directories. Deletion problems become
// warnings on the run.
func (o *Orchestrator) Cleanup(ctx context.Context, run *Run) error {
	return o.step(ctx, run, PhaseDeploy, StepCleanup, o.cleanup)
}

func (o *Orchestrator) build(ctx context.Context, run *Run) error {
	d := run.Descriptor
	identity, err := o.cfg.Validator.Validate(ctx, d)
	if err != nil {
		return err
	}
	run.Identity = identity

	base, err := o.cfg.Compiler.Compile(ctx, d)
	if err != nil {
		return err
	}

	merged, err := template.MergeIAM(base, template.IAMOptions{
		Service:    d.Service,
		Stage:      d.Stage,
		Statements: d.IAMRoleStatements,
	})
	if err != nil {
		return err
	}
	if merged, err = template.AddDeploymentOutputs(merged); err != nil {
		return err
	}

	fragments := make([]map[string]any, 0, len(d.Resources))
	for _, frag := range d.Resources {
		fragments = append(fragments, frag)
	}
	if merged, err = template.Merge(merged, fragments...); err != nil {
		return err
	}

	run.Template = merged
	return nil
}

func (o *Orchestrator) prepare(ctx context.Context, run *Run) error {
	if run.Template == nil {
		return outOfOrder(StepPrepare, "a built template")
	}
	d := run.Descriptor

	identity, err := o.cfg.Validator.Validate(ctx, d)
	if err != nil {
		return err
	}
	if identity.Account != "" {
		run.Identity = identity
	}

	run.BucketName = d.DeploymentBucket
	if run.BucketName == "" {
		if run.Identity.Account == "" {
			return validation.NewValidationError("deployment_bucket", "deployment_bucket is required when the account cannot be resolved")
		}
		run.BucketName = artifact.BucketName(d.Service, d.Stage, run.Identity.Account, d.Region)
	}

	ref, err := o.cfg.Storage.EnsureBucket(ctx, run.BucketName)
	if err != nil {
		return err
	}
	run.Bucket = &ref

	if run.ArtifactDirectory == "" {
		run.ArtifactDirectory = artifact.GenerateArtifactDirectoryName(d.DeploymentID(), run.StartedAt)
	}
	return nil
}

func (o *Orchestrator) uploadArtifacts(ctx context.Context, run *Run) error {
	if run.Template == nil || run.Bucket == nil || run.ArtifactDirectory == "" {
		return outOfOrder(StepUploadArtifacts, "a prepared bucket and artifact directory")
	}

	body, err := run.Template.JSON()
	if err != nil {
		return err
	}

	blobs := make([]storage.Blob, 0, len(run.Descriptor.Artifacts)+1)
	for _, a := range run.Descriptor.Artifacts {
		blobs = append(blobs, storage.Blob{Name: a.Name, Path: resolvePath(o.cfg.BaseDir, a.Path)})
	}
	blobs = append(blobs, storage.Blob{Name: artifact.TemplateObjectName, Data: body})

	pending := make([]storage.Blob, 0, len(blobs))
	for _, b := range blobs {
		if !run.stored[b.Name] {
			pending = append(pending, b)
		}
	}
	if len(pending) < len(blobs) {
		o.logger.Info("resuming upload", "run", run.ID, "pending", len(pending), "stored", len(blobs)-len(pending))
	}

	res, err := o.cfg.Storage.Upload(ctx, *run.Bucket, run.ArtifactDirectory, pending)
	o.cfg.Metrics.AddUploadedBytes(res.Bytes)
	o.markStored(run, pending, res, err)
	if err != nil {
		return err
	}

	uploaded := run.progress
	uploaded.Keys = slices.Clone(uploaded.Keys)
	run.Uploaded = &uploaded
	return nil
}

// markStored records what an Upload call wrote. On a partial failure only
// the blobs the gateway reports as succeeded count.
func (o *Orchestrator) markStored(run *Run, attempted []storage.Blob, res storage.UploadResult, err error) {
	if run.stored == nil {
		run.stored = map[string]bool{}
	}
	run.progress.Keys = append(run.progress.Keys, res.Keys...)
	run.progress.Bytes += res.Bytes

	if err == nil {
		for _, b := range attempted {
			run.stored[b.Name] = true
		}
		return
	}
	var uploadErr *storage.UploadError
	if errors.As(err, &uploadErr) {
		for _, name := range uploadErr.Succeeded {
			run.stored[name] = true
		}
	}
}

func (o *Orchestrator) updateStack(ctx context.Context, run *Run) error {
	if run.Uploaded == nil {
		return outOfOrder(StepUpdateStack, "uploaded artifacts")
	}

	body, err := run.Template.JSON()
	if err != nil {
		return err
	}

	req := cloudformation.Request{
		StackName: run.StackName(),
		Parameters: template.BindParameters(run.Template, map[string]string{
			template.ParamDeploymentBucket:      run.Bucket.Name,
			template.ParamArtifactDirectoryName: run.ArtifactDirectory,
		}),
		Tags: run.Descriptor.Tags,
	}
	if len(body) > template.MaxInlineBodySize {
		key := artifact.ObjectKey(run.ArtifactDirectory, artifact.TemplateObjectName)
		req.TemplateURL = artifact.ObjectURL(run.Bucket.Name, run.Bucket.Region, key)
	} else {
		req.TemplateBody = string(body)
	}

	op, err := o.cfg.Stacks.Submit(ctx, req)
	if err != nil {
		return err
	}
	run.Operation = &op

	result, err := o.cfg.Monitor.Await(ctx, op)
	if result.Operation.Stack != "" {
		run.Operation = &result.Operation
	}
	run.Status = result.Status
	if err != nil {
		return err
	}

	if o.cfg.Outputs != nil {
		outputs, err := o.cfg.Outputs.Outputs(ctx, req.StackName)
		if err != nil {
			o.warn(run, "stack outputs unavailable", "error", err)
		} else {
			run.Outputs = outputs
		}
	}
	return nil
}

func (o *Orchestrator) cleanup(ctx context.Context, run *Run) error {
	if run.Operation == nil || run.Operation.State != stack.StateSucceeded {
		return outOfOrder(StepCleanup, "a succeeded stack operation")
	}

	res, err := o.cfg.Storage.Cleanup(ctx, *run.Bucket, run.ArtifactDirectory, o.cfg.Retention)
	if err != nil {
		o.warn(run, "stale artifacts not listed", "error", err)
		return nil
	}
	run.Cleanup = &res
	for _, f := range res.Failures {
		o.warn(run, fmt.Sprintf("stale artifact %s not deleted", f.Key), "code", f.Code, "message", f.Message)
	}
	return nil
}

// =============================================================================
// Step Plumbing
// =============================================================================

func (o *Orchestrator) step(ctx context.Context, run *Run, phase, step string, fn StepFunc) error {
	logger := o.logger.With("run", run.ID, "phase", phase, "step", step)
	logger.Info("step started")

	start := time.Now()
	err := fn(ctx, run)
	elapsed := time.Since(start)

	if err != nil {
		o.cfg.Metrics.ObserveStep(phase, step, string(OutcomeFailed), elapsed)
		perr := pipelineError(run, phase, step, err)
		logger.Error("step failed",
			"bucket", perr.Bucket, "stack", perr.Stack, "token", perr.Token,
			"duration", elapsed, "error", err)
		return perr
	}

	o.cfg.Metrics.ObserveStep(phase, step, string(OutcomeSucceeded), elapsed)
	attrs := []any{"duration", elapsed}
	if run.Bucket != nil {
		attrs = append(attrs, "bucket", run.Bucket.Name)
	}
	if run.Operation != nil {
		attrs = append(attrs, "stack", run.Operation.Stack, "token", run.Operation.Token, "state", run.Operation.State)
	}
	logger.Info("step finished", attrs...)
	return nil
}

func pipelineError(run *Run, phase, step string, err error) *PipelineError {
	perr := &PipelineError{Phase: phase, Step: step, Bucket: run.BucketName, Err: err}
	if phase == PhaseDeploy && step != StepPrepare && step != StepUploadArtifacts {
		perr.Stack = run.StackName()
	}
	if run.Operation != nil {
		perr.Token = run.Operation.Token
	}

	var subErr *stack.StackSubmissionError
	if errors.As(err, &subErr) {
		perr.Stack = subErr.Stack
		if subErr.Token != "" {
			perr.Token = subErr.Token
		}
	}
	return perr
}

func (o *Orchestrator) warn(run *Run, msg string, args ...any) {
	o.logger.Warn(msg, append([]any{"run", run.ID}, args...)...)
	run.Warnings = append(run.Warnings, msg)
}
