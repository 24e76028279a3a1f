// Package telemetry provides run metrics and tracing for storesync.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label for sync runs.
const JobName = "storesync"

// Outcome labels for RunsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics tracks sync run counts and sizes. Each Metrics owns its registry
// so a short-lived run can push exactly its own series.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	SelectedTotal *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec
	InsertedTotal prometheus.Counter
	RemovedTotal  prometheus.Counter
	MasterRecords prometheus.Gauge
	LastSuccess   prometheus.Gauge
	RunDuration   prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all run metrics registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storesync_runs_total",
			Help: "Total number of sync runs by outcome",
		}, []string{"outcome", "code"}),
		SelectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storesync_deltas_selected_total",
			Help: "Queue records selected by change kind",
		}, []string{"kind"}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storesync_geocode_rejected_total",
			Help: "Geocode outcomes filtered by the acceptance policy, by match tier",
		}, []string{"tier"}),
		InsertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "storesync_stores_inserted_total",
			Help: "Master records inserted by committed batches",
		}),
		RemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "storesync_stores_removed_total",
			Help: "Master records deleted by committed batches",
		}),
		MasterRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storesync_master_records",
			Help: "Master dataset size after the last committed batch",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storesync_last_success_timestamp_seconds",
			Help: "Unix time of the last committed batch",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storesync_run_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSelected records the size of one selected partition.
func (m *Metrics) ObserveSelected(kind string, n int) {
	m.SelectedTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveRejected records rejected outcomes per tier.
func (m *Metrics) ObserveRejected(byTier map[string]int) {
	for tier, n := range byTier {
		m.RejectedTotal.WithLabelValues(tier).Add(float64(n))
	}
}

// ObserveCommit records a committed batch.
// Call with time.Now() at the start of the run.
func (m *Metrics) ObserveCommit(start time.Time, inserted, removed, master int64) {
	m.RunsTotal.WithLabelValues(OutcomeSuccess, "").Inc()
	m.InsertedTotal.Add(float64(inserted))
	m.RemovedTotal.Add(float64(removed))
	m.MasterRecords.Set(float64(master))
	m.LastSuccess.SetToCurrentTime()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// ObserveFailure records an aborted run.
// Call with time.Now() at the start of the run.
func (m *Metrics) ObserveFailure(start time.Time, code string) {
	m.RunsTotal.WithLabelValues(OutcomeFailure, code).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// Push sends the registry to a Prometheus Pushgateway, replacing the
// previous push for the job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, JobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
