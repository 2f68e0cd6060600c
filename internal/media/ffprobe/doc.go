// Package ffprobe wraps the ffprobe command-line tool for media inspection.
// The pipeline uses it to read durations for chapter timing, to validate
// candidate inputs, and to extract container tags for metadata defaults.
package ffprobe
