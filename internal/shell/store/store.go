package store

import (
	"context"
	"time"
)

// =============================================================================
// Run Record
// =============================================================================

// Outcome is the final state of a recorded run.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// RunRecord is one deploy phase execution.
type RunRecord struct {
	ID                string
	DeploymentID      string
	Service           string
	Stage             string
	Region            string
	StackName         string
	Bucket            string
	ArtifactDirectory string
	OperationToken    string
	Outcome           Outcome
	FailedStep        string
	ErrorMessage      string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for run history.
type Store interface {
	// CreateRun records a run as it starts.
	CreateRun(ctx context.Context, run *RunRecord) error

	// UpdateRun stores the progress or final state of a run.
	UpdateRun(ctx context.Context, run *RunRecord) error

	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs of a deployment, newest first.
	ListRuns(ctx context.Context, deploymentID string, opts ListOptions) ([]RunRecord, error)

	// LatestSucceeded returns the newest succeeded run of a deployment.
	// Its artifact directory is the one to roll back to.
	LatestSucceeded(ctx context.Context, deploymentID string) (*RunRecord, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
