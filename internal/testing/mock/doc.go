// Package mock provides test doubles for shipyard components.
//
// Cluster is an in-memory api.ClusterClient with failure injection, call
// recording and a concurrency high-water mark. It behaves like an API server
// where it matters to the engine: namespaced objects need their namespace,
// missing objects yield NotFound errors and unserved kinds yield
// NoKindMatch errors.
//
// MockClock makes lease expiry testable without waiting for real time.
package mock
