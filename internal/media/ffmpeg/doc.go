// Package ffmpeg wraps the ffmpeg command-line tool behind the Transcoder
// interface the pipeline consumes. Conversion progress is surfaced through an
// injected callback so callers decide how to render it; the client itself
// never writes to the terminal.
package ffmpeg
