package cloudformation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackdeploy/internal/core/stack"
	"github.com/artpar/stackdeploy/internal/shell/cloudformation"
	"github.com/artpar/stackdeploy/internal/shell/cloudformation/cfntest"
)

const stackName = "api-dev"

func request(body string) cloudformation.Request {
	return cloudformation.Request{StackName: stackName, TemplateBody: body}
}

func fastMonitor(svc cloudformation.StackService) *cloudformation.Monitor {
	return cloudformation.NewMonitor(svc, cloudformation.MonitorOptions{
		Interval:    time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
		Timeout:     time.Minute,
	})
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestSubmit_CreatesAbsentStack(t *testing.T) {
	svc := cfntest.New()
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)

	assert.Equal(t, stack.KindCreate, op.Kind)
	assert.Equal(t, stack.StateSubmitted, op.State)
	assert.NotEmpty(t, op.Token)
	assert.Equal(t, 1, svc.CallCount("Create"))
}

func TestSubmit_UpdatesStableStack(t *testing.T) {
	svc := cfntest.New()
	svc.SetStack(stackName, "CREATE_COMPLETE", `{"old":true}`)

	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{"new":true}`))
	require.NoError(t, err)
	assert.Equal(t, stack.KindUpdate, op.Kind)
	assert.False(t, op.Noop)
}

func TestSubmit_NoopUpdate(t *testing.T) {
	svc := cfntest.New()
	svc.SetStack(stackName, "UPDATE_COMPLETE", `{}`)

	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)
	assert.True(t, op.Noop)
	assert.Equal(t, stack.StateSucceeded, op.State)
}

func TestSubmit_InProgressIssuesNoCall(t *testing.T) {
	for _, status := range []string{"CREATE_IN_PROGRESS", "UPDATE_IN_PROGRESS", "UPDATE_ROLLBACK_IN_PROGRESS", "DELETE_IN_PROGRESS"} {
		t.Run(status, func(t *testing.T) {
			svc := cfntest.New()
			svc.SetStack(stackName, status, `{}`)

			_, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{"x":1}`))

			var subErr *stack.StackSubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, stack.KindConcurrentOperation, subErr.Kind)
			assert.Equal(t, 0, svc.CallCount("Create"))
			assert.Equal(t, 0, svc.CallCount("Update"))
		})
	}
}

func TestSubmit_RaceReportedByService(t *testing.T) {
	svc := cfntest.New()
	svc.SetStack(stackName, "UPDATE_COMPLETE", `{}`)
	svc.UpdateErr = errors.Join(cloudformation.ErrServiceConcurrent, errors.New("stack is in UPDATE_IN_PROGRESS state"))

	_, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{"x":1}`))
	assert.ErrorIs(t, err, stack.ErrConcurrentOperation)
}

func TestSubmit_GenericFailures(t *testing.T) {
	svc := cfntest.New()
	svc.DescribeErr = errors.New("throttled")
	_, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))

	var subErr *stack.StackSubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, stack.KindGeneric, subErr.Kind)

	svc = cfntest.New()
	svc.CreateErr = errors.New("template format error")
	_, err = cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, stack.KindGeneric, subErr.Kind)
	assert.NotEmpty(t, subErr.Token)
}

// =============================================================================
// Monitor Tests
// =============================================================================

func TestAwait_NoopSucceedsWithoutPolling(t *testing.T) {
	svc := cfntest.New()
	op := stack.NewOperation(stackName, stack.KindUpdate, "tok", true)

	res, err := fastMonitor(svc).Await(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, stack.StateSucceeded, res.Operation.State)
	assert.Equal(t, 0, res.Polls)
	assert.Equal(t, 0, svc.CallCount("PollStatus"))
}

func TestAwait_CreateSucceeds(t *testing.T) {
	svc := cfntest.New()
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)

	res, err := fastMonitor(svc).Await(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, stack.StateSucceeded, res.Operation.State)
	assert.Equal(t, "CREATE_COMPLETE", res.Status.RawStatus)
	assert.Equal(t, 2, res.Polls)
}

func TestAwait_RolledBack(t *testing.T) {
	svc := cfntest.New()
	svc.SetStack(stackName, "UPDATE_COMPLETE", `{}`)
	svc.UpdateScript = []string{"UPDATE_IN_PROGRESS", "UPDATE_ROLLBACK_IN_PROGRESS", "UPDATE_ROLLBACK_COMPLETE"}
	svc.Reason = "Table: Resource handler returned message: \"Table already exists\""

	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{"x":1}`))
	require.NoError(t, err)

	_, err = fastMonitor(svc).Await(context.Background(), op)

	var failed *stack.StackOperationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, stack.StateRolledBack, failed.State)
	assert.Equal(t, svc.Reason, failed.Reason)
	assert.Equal(t, op.Token, failed.Token)
}

func TestAwait_Failed(t *testing.T) {
	svc := cfntest.New()
	svc.CreateScript = []string{"CREATE_IN_PROGRESS", "CREATE_FAILED"}
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)

	_, err = fastMonitor(svc).Await(context.Background(), op)
	assert.ErrorIs(t, err, stack.ErrOperationFailed)
}

func TestAwait_Timeout(t *testing.T) {
	svc := cfntest.New()
	svc.CreateScript = []string{"CREATE_IN_PROGRESS"}
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mon := cloudformation.NewMonitor(svc, cloudformation.MonitorOptions{
		Interval:    time.Millisecond,
		MaxInterval: time.Millisecond,
		Timeout:     3 * time.Minute,
		Now: func() time.Time {
			now = now.Add(time.Minute)
			return now
		},
	})

	res, err := mon.Await(context.Background(), op)

	var timeout *stack.MonitorTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, stack.StateInProgress, timeout.LastState)
	assert.Equal(t, "CREATE_IN_PROGRESS", timeout.LastStatus)
	assert.Equal(t, op.Token, timeout.Token)
	assert.GreaterOrEqual(t, timeout.Elapsed, 3*time.Minute)
	assert.Greater(t, res.Polls, 1)
}

func TestAwait_Cancelled(t *testing.T) {
	svc := cfntest.New()
	svc.CreateScript = []string{"CREATE_IN_PROGRESS"}
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mon := cloudformation.NewMonitor(svc, cloudformation.MonitorOptions{
		Interval: time.Hour,
		Timeout:  2 * time.Hour,
	})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = mon.Await(ctx, op)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "CREATE_IN_PROGRESS", svc.Status(stackName), "remote operation is not touched")
}

func TestAwait_PollError(t *testing.T) {
	svc := cfntest.New()
	op, err := cloudformation.NewManager(svc, nil).Submit(context.Background(), request(`{}`))
	require.NoError(t, err)
	svc.PollErr = errors.New("throttled")

	_, err = fastMonitor(svc).Await(context.Background(), op)
	assert.ErrorContains(t, err, "throttled")
	assert.ErrorContains(t, err, op.Token)
}
