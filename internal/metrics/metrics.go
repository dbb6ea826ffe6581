package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"paperpost/internal/types"
)

// Recorder holds the run counters. Each process owns its own registry; a
// single run is short lived, so values are pushed rather than scraped.
type Recorder struct {
	registry *prometheus.Registry

	fetched      prometheus.Counter
	selected     prometheus.Counter
	processed    prometheus.Counter
	skipped      prometheus.Counter
	failed       prometheus.Counter
	sinkFailures *prometheus.CounterVec
	runs         *prometheus.CounterVec
	duration     prometheus.Gauge
	checkpoint   prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperpost_items_fetched_total",
			Help: "Items returned by the source past the checkpoint.",
		}),
		selected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperpost_items_selected_total",
			Help: "Items selected by the ranker.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperpost_items_processed_total",
			Help: "Selected items that went through enrichment and publishing.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperpost_items_skipped_total",
			Help: "Items not selected by the ranker.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperpost_items_failed_total",
			Help: "Selected items with at least one enrichment or sink failure.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperpost_sink_failures_total",
			Help: "Publish failures per sink.",
		}, []string{"sink"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperpost_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperpost_last_run_duration_seconds",
			Help: "Duration of the last pipeline run.",
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperpost_checkpoint_timestamp_seconds",
			Help: "Publication time of the last checkpointed item.",
		}),
	}

	r.registry.MustRegister(
		r.fetched, r.selected, r.processed, r.skipped, r.failed,
		r.sinkFailures, r.runs, r.duration, r.checkpoint,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// The recording methods are no-ops on a nil Recorder.

func (r *Recorder) SinkFailed(sink string) {
	if r == nil {
		return
	}
	r.sinkFailures.WithLabelValues(sink).Inc()
}

func (r *Recorder) CheckpointAdvanced(publishedAt time.Time) {
	if r == nil {
		return
	}
	r.checkpoint.Set(float64(publishedAt.Unix()))
}

// RunFinished records a run's totals. err is the run's terminal error, if any.
func (r *Recorder) RunFinished(summary types.RunSummary, err error) {
	if r == nil {
		return
	}
	r.fetched.Add(float64(summary.Fetched))
	r.selected.Add(float64(summary.Selected))
	r.processed.Add(float64(summary.Processed))
	r.skipped.Add(float64(summary.Skipped))
	r.failed.Add(float64(summary.Failed))
	r.duration.Set(summary.Duration.Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// Push sends the registry to a Prometheus Pushgateway. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
