package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func newTestRun(id string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:           id,
		DeploymentID: "stackdeploy/orders/dev",
		Service:      "orders",
		Stage:        "dev",
		Region:       "us-east-1",
		StackName:    "orders-dev",
		Outcome:      OutcomeRunning,
		StartedAt:    startedAt,
	}
}

// =============================================================================
// Run CRUD Tests
// =============================================================================

func TestCreateRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)

	run := newTestRun("run-1", started)
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "stackdeploy/orders/dev", got.DeploymentID)
	assert.Equal(t, OutcomeRunning, got.Outcome)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
}

func TestCreateRun_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", time.Now())
	require.NoError(t, store.CreateRun(ctx, run))

	err := store.CreateRun(ctx, run)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetRun_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "missing", storeErr.Ref)
	assert.Equal(t, "history GetRun missing: run not found", err.Error())
}

func TestUpdateRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	run := newTestRun("run-1", started)
	require.NoError(t, store.CreateRun(ctx, run))

	finished := started.Add(3 * time.Minute)
	run.Bucket = "orders-dev-deployments"
	run.ArtifactDirectory = "stackdeploy/orders/dev/1714557600000-2024-05-01T10:00:00.000000000Z"
	run.OperationToken = "stackdeploy-abc"
	run.Outcome = OutcomeFailed
	run.FailedStep = "updateStack"
	run.ErrorMessage = "stack busy"
	run.FinishedAt = &finished
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, "updateStack", got.FailedStep)
	assert.Equal(t, "stack busy", got.ErrorMessage)
	assert.Equal(t, "stackdeploy-abc", got.OperationToken)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestUpdateRun_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateRun(context.Background(), newTestRun("missing", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Query Tests
// =============================================================================

func TestListRuns_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, store.CreateRun(ctx, newTestRun(id, base.Add(time.Duration(i)*time.Minute))))
	}
	other := newTestRun("other", base.Add(time.Hour))
	other.DeploymentID = "stackdeploy/billing/dev"
	require.NoError(t, store.CreateRun(ctx, other))

	runs, err := store.ListRuns(ctx, "stackdeploy/orders/dev", DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
	assert.Equal(t, "run-a", runs[2].ID)

	page, err := store.ListRuns(ctx, "stackdeploy/orders/dev", ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-b", page[0].ID)
}

func TestLatestSucceeded(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.LatestSucceeded(ctx, "stackdeploy/orders/dev")
	assert.ErrorIs(t, err, ErrNotFound)

	old := newTestRun("old", base)
	old.Outcome = OutcomeSucceeded
	old.ArtifactDirectory = "stackdeploy/orders/dev/old"
	require.NoError(t, store.CreateRun(ctx, old))

	newer := newTestRun("newer", base.Add(time.Minute))
	newer.Outcome = OutcomeSucceeded
	newer.ArtifactDirectory = "stackdeploy/orders/dev/newer"
	require.NoError(t, store.CreateRun(ctx, newer))

	failed := newTestRun("failed", base.Add(2*time.Minute))
	failed.Outcome = OutcomeFailed
	require.NoError(t, store.CreateRun(ctx, failed))

	got, err := store.LatestSucceeded(ctx, "stackdeploy/orders/dev")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.ID)
	assert.Equal(t, "stackdeploy/orders/dev/newer", got.ArtifactDirectory)
}

// =============================================================================
// Options Tests
// =============================================================================

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListOptions
		want ListOptions
	}{
		{"defaults", ListOptions{}, ListOptions{Limit: 20}},
		{"cap", ListOptions{Limit: 5000}, ListOptions{Limit: 1000}},
		{"negative offset", ListOptions{Limit: 5, Offset: -1}, ListOptions{Limit: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestNewSQLiteStore_FileReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s1.CreateRun(ctx, newTestRun("run-1", time.Now())))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Service)
}
