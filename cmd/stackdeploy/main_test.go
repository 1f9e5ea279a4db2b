package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/core/template"
	"github.com/artpar/stackdeploy/internal/core/validation"
	"github.com/artpar/stackdeploy/internal/engine"
	"github.com/artpar/stackdeploy/internal/shell/storage"
	"github.com/artpar/stackdeploy/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func init() {
	color.NoColor = true
}

const testDescriptorYAML = `
service: orders
stage: dev
region: eu-west-1
template: template.json
iam_role_statements:
  - Effect: Allow
    Action: dynamodb:Query
    Resource: "*"
resources:
  - Resources:
      OrdersTable:
        Type: AWS::DynamoDB::Table
`

const testTemplateJSON = `{
  "Resources": {
    "OrdersFunction": {
      "Type": "AWS::Lambda::Function",
      "Properties": {"Handler": "index.handler", "Runtime": "nodejs20.x"}
    }
  }
}`

// project writes a descriptor and template to a temp dir and points the
// history database at it.
func project(t *testing.T) (dir, descriptorPath, configPath string) {
	t.Helper()
	clearEnv(t)
	dir = t.TempDir()
	descriptorPath = filepath.Join(dir, DefaultDescriptorFile)
	require.NoError(t, os.WriteFile(descriptorPath, []byte(testDescriptorYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.json"), []byte(testTemplateJSON), 0o644))

	configPath = filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("log:\n  level: error\nhistory:\n  dsn: %q\n", filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	return dir, descriptorPath, configPath
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVersionCommand(t *testing.T) {
	code, out, _ := execute("version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "stackdeploy dev (built unknown)\n", out)
}

func TestBuildCommand_PrintsMergedTemplate(t *testing.T) {
	_, descriptorPath, configPath := project(t)

	code, out, stderr := execute("build", "--config", configPath, "--file", descriptorPath)
	require.Equal(t, ExitSuccess, code, stderr)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	resources := body["Resources"].(map[string]any)
	assert.Contains(t, resources, "OrdersFunction")
	assert.Contains(t, resources, "OrdersTable")
	assert.Contains(t, resources, template.ExecutionRoleID)
	assert.Contains(t, resources, template.LogGroupID("OrdersFunction"))
	assert.Contains(t, body["Outputs"], template.OutputDeploymentBucketName)
}

func TestBuildCommand_WritesFile(t *testing.T) {
	dir, descriptorPath, configPath := project(t)
	outPath := filepath.Join(dir, "out.json")

	code, out, stderr := execute("build", "--config", configPath, "--file", descriptorPath, "--out", outPath, "--stage", "prod")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "orders-prod-OrdersFunction")
}

func TestBuildCommand_MissingDescriptor(t *testing.T) {
	dir, _, configPath := project(t)

	code, _, stderr := execute("build", "--config", configPath, "--file", filepath.Join(dir, "nope.yml"))
	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "not found")
}

func TestBuildCommand_ValidationError(t *testing.T) {
	dir, descriptorPath, configPath := project(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "template.json")))

	code, _, stderr := execute("build", "--config", configPath, "--file", descriptorPath)
	assert.Equal(t, ExitValidationError, code)
	assert.Contains(t, stderr, "template")
}

func TestHistoryCommand(t *testing.T) {
	dir, descriptorPath, configPath := project(t)

	h, err := store.NewSQLiteStore(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	require.NoError(t, h.CreateRun(context.Background(), &store.RunRecord{
		ID:                "run-1",
		DeploymentID:      "stackdeploy/orders/dev",
		Service:           "orders",
		Stage:             "dev",
		Region:            "eu-west-1",
		StackName:         "orders-dev",
		ArtifactDirectory: "stackdeploy/orders/dev/1714557600000-2024-05-01T10:00:00.000000000Z",
		Outcome:           store.OutcomeSucceeded,
		StartedAt:         started,
		FinishedAt:        &finished,
	}))
	require.NoError(t, h.Close())

	code, out, stderr := execute("history", "--config", configPath, "--file", descriptorPath)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "Last good artifacts: stackdeploy/orders/dev/1714557600000")
}

func TestHistoryCommand_Empty(t *testing.T) {
	_, descriptorPath, configPath := project(t)

	code, out, _ := execute("history", "--config", configPath, "--file", descriptorPath)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "No deployments recorded")
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"app error", &AppError{Op: "x", Err: errors.New("boom"), ExitCode: ExitConfigError}, ExitConfigError},
		{"validation", &engine.PipelineError{Phase: engine.PhaseBuild, Step: engine.StepPrepare, Err: validation.NewValidationError("stage", "required")}, ExitValidationError},
		{"merge conflict", &engine.PipelineError{Phase: engine.PhaseBuild, Step: engine.StepPrepare, Err: &template.MergeConflictError{Path: "Outputs", Key: "Outputs"}}, ExitBuildError},
		{"upload", &engine.PipelineError{Phase: engine.PhaseDeploy, Step: engine.StepUploadArtifacts, Err: &storage.UploadError{Bucket: "b"}}, ExitStorageError},
		{"provision", &storage.StorageProvisionError{Bucket: "b", Reason: "r", Err: errors.New("x")}, ExitStorageError},
		{"concurrent", &stack.StackSubmissionError{Kind: stack.KindConcurrentOperation, Stack: "s", Err: errors.New("busy")}, ExitStackError},
		{"failed", &stack.StackOperationFailedError{Stack: "s", State: stack.StateRolledBack}, ExitStackError},
		{"timeout", &stack.MonitorTimeoutError{Stack: "s"}, ExitTimeout},
		{"unknown update failure", &engine.PipelineError{Phase: engine.PhaseDeploy, Step: engine.StepUpdateStack, Err: errors.New("x")}, ExitStackError},
		{"other", errors.New("x"), ExitConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// =============================================================================
// Output Tests
// =============================================================================

func TestWriteResult_Skipped(t *testing.T) {
	var buf bytes.Buffer
	writeResult(&buf, engine.Result{Outcome: engine.OutcomeSkipped, Message: "deploy phase skipped"})
	assert.Equal(t, "Deployment skipped: deploy phase skipped\n", buf.String())
}

func TestWriteResult_Succeeded(t *testing.T) {
	var buf bytes.Buffer
	r := &engine.Run{
		BucketName:        "bucket",
		ArtifactDirectory: "stackdeploy/orders/dev/1",
		Uploaded:          &storage.UploadResult{Keys: []string{"a", "b"}, Bytes: 10},
		Operation:         &stack.Operation{Stack: "orders-dev", Kind: stack.KindUpdate, Noop: true},
		Cleanup:           &storage.CleanupResult{Removed: 2, Kept: []string{"x", "y"}},
		Outputs:           map[string]string{"B": "2", "A": "1"},
		Warnings:          []string{"stale artifact x not deleted"},
	}
	r.Descriptor.Service, r.Descriptor.Stage = "orders", "dev"

	writeResult(&buf, engine.Result{Outcome: engine.OutcomeSucceeded, Run: r})
	out := buf.String()

	assert.Contains(t, out, "Deployment succeeded")
	assert.Contains(t, out, "orders-dev (update, no changes)")
	assert.Contains(t, out, "2 objects, 10 bytes")
	assert.Contains(t, out, "removed 2 stale directories, kept 2")
	assert.Regexp(t, `A: 1\n\s+B: 2`, out)
	assert.Contains(t, out, "warning: stale artifact x not deleted")
}
