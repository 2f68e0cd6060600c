// Package jobs defines the shared task model and error taxonomy for the
// conversion pipeline: input files with their original ordinals, per-task
// lifecycle states, converted fragments, and the sentinel error markers that
// drive the scheduler's recoverable-versus-fatal policy.
package jobs
