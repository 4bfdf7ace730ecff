// Package metrics exports bluebox dispatcher activity to Prometheus.
package metrics
