// Package metrics exposes Prometheus metrics for sync runs and plan actions.
package metrics
