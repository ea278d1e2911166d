package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/util/workqueue"
)

const (
	metricsNamespace = "shipyard"
	metricsSubsystem = "reconcile"
)

// Reconcile results recorded by Metrics.
const (
	ResultSynced   = "synced"
	ResultRequeued = "requeued"
	ResultError    = "error"
	ResultDropped  = "dropped"
)

// Metrics records reconcile outcomes and implements workqueue.MetricsProvider
// so the work queue reports into the same registry. All methods are safe on a
// nil *Metrics.
type Metrics struct {
	reconciles *prometheus.CounterVec

	depth          *prometheus.GaugeVec
	adds           *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	workDuration   *prometheus.HistogramVec
	unfinished     *prometheus.GaugeVec
	longestRunning *prometheus.GaugeVec
	retries        *prometheus.CounterVec
}

// NewMetrics creates the reconcile metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	queueLabels := []string{"name"}
	m := &Metrics{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "total",
			Help:      "Reconcile attempts by resource type and result.",
		}, []string{"type", "result"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth",
			Help:      "Requests waiting in the work queue.",
		}, queueLabels),
		adds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_adds_total",
			Help:      "Requests added to the work queue.",
		}, queueLabels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_duration_seconds",
			Help:      "Time a request waits in the work queue.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, queueLabels),
		workDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "work_duration_seconds",
			Help:      "Time spent processing a request.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, queueLabels),
		unfinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "unfinished_work_seconds",
			Help:      "Seconds of work in progress not yet observed by work_duration.",
		}, queueLabels),
		longestRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "longest_running_processor_seconds",
			Help:      "Seconds the longest running worker has been processing.",
		}, queueLabels),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "retries_total",
			Help:      "Rate limited requeues.",
		}, queueLabels),
	}
	reg.MustRegister(m.reconciles, m.depth, m.adds, m.latency, m.workDuration, m.unfinished, m.longestRunning, m.retries)
	return m
}

// Observe records the result of one reconcile attempt.
func (m *Metrics) Observe(resourceType ResourceType, result string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(string(resourceType), result).Inc()
}

// queueProvider returns m as a metrics provider, or nil so the work queue
// falls back to its no-op provider.
func (m *Metrics) queueProvider() workqueue.MetricsProvider {
	if m == nil {
		return nil
	}
	return m
}

func (m *Metrics) NewDepthMetric(name string) workqueue.GaugeMetric {
	return m.depth.WithLabelValues(name)
}

func (m *Metrics) NewAddsMetric(name string) workqueue.CounterMetric {
	return m.adds.WithLabelValues(name)
}

func (m *Metrics) NewLatencyMetric(name string) workqueue.HistogramMetric {
	return m.latency.WithLabelValues(name)
}

func (m *Metrics) NewWorkDurationMetric(name string) workqueue.HistogramMetric {
	return m.workDuration.WithLabelValues(name)
}

func (m *Metrics) NewUnfinishedWorkSecondsMetric(name string) workqueue.SettableGaugeMetric {
	return m.unfinished.WithLabelValues(name)
}

func (m *Metrics) NewLongestRunningProcessorSecondsMetric(name string) workqueue.SettableGaugeMetric {
	return m.longestRunning.WithLabelValues(name)
}

func (m *Metrics) NewRetriesMetric(name string) workqueue.CounterMetric {
	return m.retries.WithLabelValues(name)
}
