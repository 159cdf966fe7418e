// Package metrics exposes swarmchat's Prometheus metrics.
// This package is internal and should not be imported by external projects.
package metrics
