package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying pipeline failures. Wrap tags errors with one
// of these so callers can branch on kind without a class hierarchy.
var (
	// ErrDependencyUnavailable means a required external tool is missing.
	// Always fatal, detected pre-flight.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrResourceExhausted means a memory or disk budget was exceeded.
	// Fatal mid-job.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrValidation means input files failed validation before scheduling.
	ErrValidation = errors.New("validation failed")
	// ErrConversion is a per-file transcode failure. Recoverable: the job
	// proceeds with the surviving subset.
	ErrConversion = errors.New("conversion failed")
	// ErrConcatenation means the final merge failed. Fatal; no partial
	// output is retained.
	ErrConcatenation = errors.New("concatenation failed")
	// ErrCancelled is clean termination after a shutdown request.
	ErrCancelled = errors.New("cancelled")
)

// Wrap builds an error carrying component and operation context while tagging
// it with the provided marker for later classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrConversion
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether the job may continue after this error. Only
// per-file conversion failures are recoverable; everything else aborts.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDependencyUnavailable),
		errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrConcatenation),
		errors.Is(err, ErrCancelled):
		return false
	case errors.Is(err, ErrConversion):
		return true
	default:
		return false
	}
}

// FileError is a recoverable per-file failure recorded in the aggregate
// report returned with the job result.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
