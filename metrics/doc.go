// Package metrics provides the Prometheus collectors for sandbox executions,
// the container pool and the orphan sweep, and a small HTTP server exposing
// them on /metrics.
package metrics
