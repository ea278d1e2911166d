package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBackoff(t *testing.T) {
	rl := newRateLimiter(10*time.Millisecond, 40*time.Millisecond)
	req := ReconcileRequest{Type: ResourceTypeInstance, Name: "inst-1"}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond}
	for i, d := range want {
		assert.Equal(t, d, rl.When(req), "attempt %d", i+1)
	}
	assert.Equal(t, 4, rl.NumRequeues(req))

	rl.Forget(req)
	assert.Equal(t, 10*time.Millisecond, rl.When(req), "Forget resets the backoff")

	other := ReconcileRequest{Type: ResourceTypeInstance, Name: "inst-2"}
	assert.Equal(t, 10*time.Millisecond, rl.When(other), "backoff is per request")
}

func TestQueueCoalescesRequests(t *testing.T) {
	q := newQueue(ManagerConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil)
	defer q.ShutDown()

	req := ReconcileRequest{Type: ResourceTypeInstance, Name: "inst-1"}
	q.Add(req)
	q.Add(req)
	assert.Equal(t, 1, q.Len())

	got, shutdown := q.Get()
	assert.False(t, shutdown)
	assert.Equal(t, req, got)

	// added while processing: held back until Done
	q.Add(req)
	assert.Equal(t, 0, q.Len())
	q.Done(got)
	assert.Equal(t, 1, q.Len())
}

func TestRequestString(t *testing.T) {
	assert.Equal(t, "Instance/inst-1", ReconcileRequest{Type: ResourceTypeInstance, Name: "inst-1"}.String())
	assert.Equal(t, "Template/webapp", ReconcileRequest{Type: ResourceTypeTemplate, Name: "webapp"}.String())
}
