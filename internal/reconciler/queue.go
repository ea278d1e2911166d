package reconciler

import (
	"time"

	"k8s.io/client-go/util/workqueue"
)

// queueName labels the work queue metrics.
const queueName = "instances"

// newRateLimiter returns the per-request exponential backoff.
func newRateLimiter(initial, max time.Duration) workqueue.TypedRateLimiter[ReconcileRequest] {
	return workqueue.NewTypedItemExponentialFailureRateLimiter[ReconcileRequest](initial, max)
}

// newQueue creates the work queue shared by the workers. Requests equal to a
// queued one are dropped, and a request added while it is being processed is
// queued again once Done is called for it.
func newQueue(cfg ManagerConfig, provider workqueue.MetricsProvider) workqueue.TypedRateLimitingInterface[ReconcileRequest] {
	qc := workqueue.TypedRateLimitingQueueConfig[ReconcileRequest]{Name: queueName}
	if provider != nil {
		qc.MetricsProvider = provider
	}
	return workqueue.NewTypedRateLimitingQueueWithConfig(newRateLimiter(cfg.InitialBackoff, cfg.MaxBackoff), qc)
}
