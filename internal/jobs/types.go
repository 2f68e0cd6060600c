package jobs

import (
	"fmt"
	"time"
)

// EncodeParams captures the conversion settings that shape every fragment.
// The values participate in the job identity digest, so changing any of them
// yields a fresh cache directory.
type EncodeParams struct {
	Bitrate    string
	SampleRate int
	Channels   int
}

// Canonical returns the serialized form used for job identity hashing.
func (p EncodeParams) Canonical() string {
	return fmt.Sprintf("bitrate=%s;rate=%d;ch=%d", p.Bitrate, p.SampleRate, p.Channels)
}

// InputFile describes one source audio file. Ordinal is the position in the
// original input order and must be preserved end to end so chapter ordering
// survives out-of-order task completion.
type InputFile struct {
	Path    string
	Size    int64
	ModTime time.Time
	Ordinal int
}

// TaskStatus is the lifecycle state of a conversion task.
type TaskStatus string

const (
	StatusPending           TaskStatus = "pending"
	StatusResumedSkip       TaskStatus = "resumed_skip"
	StatusRunning           TaskStatus = "running"
	StatusDone              TaskStatus = "done"
	StatusFailedRecoverable TaskStatus = "failed_recoverable"
	StatusFailedFatal       TaskStatus = "failed_fatal"
	StatusCancelled         TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusFailedRecoverable, StatusFailedFatal, StatusCancelled:
		return true
	}
	return false
}

// ConversionTask tracks one input file through the scheduler.
type ConversionTask struct {
	Input        InputFile
	FragmentPath string
	Status       TaskStatus
	Err          error
}

// ConvertedFragment is the per-file intermediate artifact awaiting
// concatenation. Ordinal always equals the source InputFile ordinal.
type ConvertedFragment struct {
	Path       string
	DurationMS int64
	Ordinal    int
}
