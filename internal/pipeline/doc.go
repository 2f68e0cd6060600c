// Package pipeline orchestrates a full audiobook build: input scanning,
// validation, metadata extraction, resource preflight, scheduled conversion,
// stream-copy concatenation, tag embedding, and run history recording.
package pipeline
