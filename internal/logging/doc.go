// Package logging assembles the structured slog loggers used across the
// audiobook pipeline.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers plus a no-op logger so pipeline
// components always log with the same shape. Prefer these constructors over
// hand-rolled slog setup.
package logging
