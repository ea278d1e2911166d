// Package cluster maps environments to the Kubernetes clusters they deploy
// to and hands out one shared client per cluster.
package cluster
