// Package validation screens input audio files before conversion. Three
// strictness levels trade thoroughness for speed: lax checks the filesystem
// only, normal decodes headers with ffprobe, strict adds stream sanity
// checks. A batch always returns the valid subset plus a per-file report.
package validation
