// Package history records one row per pipeline run in a local SQLite
// database so past conversions can be inspected from the CLI.
package history
