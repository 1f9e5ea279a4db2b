// Package metrics records pipeline step timings and outcomes in a Prometheus
// registry and optionally pushes them to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label.
const JobName = "stackdeploy"

var stepBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800}

// =============================================================================
// Recorder
// =============================================================================

// Recorder owns the pipeline collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	stepDuration  *prometheus.HistogramVec
	stepResults   *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	logger        *slog.Logger
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackdeploy",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps",
			Buckets:   stepBuckets,
		}, []string{"phase", "step"}),
		stepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackdeploy",
			Subsystem: "pipeline",
			Name:      "step_results_total",
			Help:      "Number of pipeline step outcomes",
		}, []string{"phase", "step", "outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stackdeploy",
			Subsystem: "storage",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes uploaded to the deployment bucket",
		}),
		logger: logger.With("component", "metrics"),
	}
	r.registry.MustRegister(r.stepDuration, r.stepResults, r.uploadedBytes)
	return r
}

// Registry exposes the underlying registry, mostly for tests and exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStep records the duration and outcome of one step.
func (r *Recorder) ObserveStep(phase, step, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.stepDuration.With(prometheus.Labels{"phase": phase, "step": step}).Observe(duration.Seconds())
	r.stepResults.With(prometheus.Labels{"phase": phase, "step": step, "outcome": outcome}).Inc()
}

// AddUploadedBytes adds n to the uploaded bytes counter.
func (r *Recorder) AddUploadedBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.uploadedBytes.Add(float64(n))
}

// Push sends the registry to a Pushgateway. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url string, grouping map[string]string) error {
	if r == nil || url == "" {
		return nil
	}

	pusher := push.New(url, JobName).Gatherer(r.registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	r.logger.Debug("metrics pushed", "url", url)
	return nil
}
