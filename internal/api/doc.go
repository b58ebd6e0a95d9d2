// Package api serves the read-only debug surface: health, published
// services, per-process statistics, and Prometheus metrics. It never
// mutates transport state.
package api
