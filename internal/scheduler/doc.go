// Package scheduler runs file conversions over a bounded worker pool with
// receipt-based resume, per-task timeouts, cooperative cancellation, and
// ordinal-ordered result reassembly.
package scheduler
