package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveStep(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveStep("deploy", "uploadArtifacts", "succeeded", 2*time.Second)
	r.ObserveStep("deploy", "uploadArtifacts", "failed", time.Second)
	r.ObserveStep("deploy", "updateStack", "succeeded", time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepResults.WithLabelValues("deploy", "uploadArtifacts", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepResults.WithLabelValues("deploy", "updateStack", "succeeded")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stepDuration))
}

func TestRecorder_UploadedBytes(t *testing.T) {
	r := NewRecorder(nil)

	r.AddUploadedBytes(100)
	r.AddUploadedBytes(0)
	r.AddUploadedBytes(-5)
	r.AddUploadedBytes(50)

	assert.Equal(t, 150.0, testutil.ToFloat64(r.uploadedBytes))
}

func TestRecorder_GatheredNames(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveStep("build", "prepare", "succeeded", time.Millisecond)
	r.AddUploadedBytes(1)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{
		"stackdeploy_pipeline_step_duration_seconds",
		"stackdeploy_pipeline_step_results_total",
		"stackdeploy_storage_uploaded_bytes_total",
	}, names)
}

func TestRecorder_HistogramSamples(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveStep("deploy", "updateStack", "succeeded", 20*time.Second)
	r.ObserveStep("deploy", "updateStack", "succeeded", 40*time.Second)

	m := &dto.Metric{}
	require.NoError(t, r.stepDuration.WithLabelValues("deploy", "updateStack").(interface {
		Write(*dto.Metric) error
	}).Write(m))

	assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 60.0, m.GetHistogram().GetSampleSum(), 0.001)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveStep("deploy", "cleanup", "succeeded", time.Second)
		r.AddUploadedBytes(10)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.Push(context.Background(), "http://127.0.0.1:1", nil))
}

func TestRecorder_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder(nil)
	r.AddUploadedBytes(42)

	err := r.Push(context.Background(), srv.URL, map[string]string{"stage": "dev"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/stackdeploy"))
	assert.Contains(t, gotPath, "/stage/dev")
	assert.NotEmpty(t, gotBody)
}

func TestRecorder_PushEmptyURL(t *testing.T) {
	r := NewRecorder(nil)
	assert.NoError(t, r.Push(context.Background(), "", nil))
}

func TestRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRecorder(nil)
	err := r.Push(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}
