package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shipyard/internal/api"
)

const namespace = "shipyard"

// Label names.
const (
	LabelStatus  = "status"
	LabelVerb    = "verb"
	LabelOutcome = "outcome"
)

// DurationBuckets cover runs from a few hundred milliseconds to ten minutes.
var DurationBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Recorder collects engine metrics. All methods are safe on a nil Recorder,
// which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	actionsTotal   *prometheus.CounterVec
	actionAttempts *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	lockRejections prometheus.Counter
	downgrades     prometheus.Counter
	activeRuns     prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by terminal status.",
		}, []string{LabelStatus}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs by terminal status.",
			Buckets:   DurationBuckets,
		}, []string{LabelStatus}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "actions_total",
			Help:      "Executed plan actions by verb and outcome.",
		}, []string{LabelVerb, LabelOutcome}),
		actionAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "action_attempts",
			Help:      "Cluster calls made per executed action.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{LabelVerb}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "retries_total",
			Help:      "Retried cluster calls by verb.",
		}, []string{LabelVerb}),
		lockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "lock_rejections_total",
			Help:      "Sync requests rejected because the instance was locked.",
		}),
		downgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "visibility_downgrades_total",
			Help:      "Components deployed with cluster visibility instead of the requested one.",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "active_runs",
			Help:      "Sync runs currently in progress.",
		}),
	}
	r.registry.MustRegister(
		r.runsTotal, r.runDuration, r.actionsTotal, r.actionAttempts,
		r.retriesTotal, r.lockRejections, r.downgrades, r.activeRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RunStarted counts a run as active.
func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.activeRuns.Inc()
}

// RunCompleted records a terminal run.
func (r *Recorder) RunCompleted(status api.SyncStatus, duration time.Duration) {
	if r == nil {
		return
	}
	r.activeRuns.Dec()
	r.runsTotal.WithLabelValues(string(status)).Inc()
	r.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// LockRejected counts a sync request refused by the lease.
func (r *Recorder) LockRejected() {
	if r == nil {
		return
	}
	r.lockRejections.Inc()
}

// VisibilityDowngraded counts a component deployed below its requested
// visibility.
func (r *Recorder) VisibilityDowngraded() {
	if r == nil {
		return
	}
	r.downgrades.Inc()
}

// ActionCompleted implements applier.Recorder.
func (r *Recorder) ActionCompleted(verb api.ActionVerb, outcome api.ActionOutcome, attempts int) {
	if r == nil {
		return
	}
	r.actionsTotal.WithLabelValues(string(verb), string(outcome)).Inc()
	r.actionAttempts.WithLabelValues(string(verb)).Observe(float64(attempts))
}

// ActionRetried implements applier.Recorder.
func (r *Recorder) ActionRetried(verb api.ActionVerb) {
	if r == nil {
		return
	}
	r.retriesTotal.WithLabelValues(string(verb)).Inc()
}
