package validation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/logging"
	"audiobookmaker/internal/media/ffprobe"
)

// Level controls validation strictness.
type Level string

const (
	// LevelLax checks existence, readability, and extension only.
	LevelLax Level = "lax"
	// LevelNormal additionally decodes each file's headers with ffprobe.
	LevelNormal Level = "normal"
	// LevelStrict additionally applies stream and codec sanity checks.
	LevelStrict Level = "strict"
)

// ParseLevel maps a config string onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(LevelNormal):
		return LevelNormal, nil
	case string(LevelLax):
		return LevelLax, nil
	case string(LevelStrict):
		return LevelStrict, nil
	default:
		return "", fmt.Errorf("unknown validation level %q (expected lax, normal, or strict)", s)
	}
}

var supportedExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".flac": {}, ".ogg": {},
	".aac": {}, ".m4b": {}, ".wma": {}, ".opus": {}, ".webm": {},
}

// SupportedExtension reports whether path carries a recognized audio
// extension, case-insensitively.
func SupportedExtension(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileReport records the outcome of validating one input file.
type FileReport struct {
	Path       string
	Valid      bool
	DurationMS int64
	Errors     []string
	Warnings   []string
}

// Report aggregates per-file outcomes for one batch.
type Report struct {
	Level Level
	Files []FileReport
}

// ValidCount returns the number of files that passed.
func (r *Report) ValidCount() int {
	count := 0
	for _, file := range r.Files {
		if file.Valid {
			count++
		}
	}
	return count
}

// Summary renders a short human-readable account of the batch, listing
// failed files with their first error.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d files valid (%s)", r.ValidCount(), len(r.Files), r.Level)
	for _, file := range r.Files {
		if file.Valid {
			continue
		}
		reason := "unknown"
		if len(file.Errors) > 0 {
			reason = file.Errors[0]
		}
		fmt.Fprintf(&b, "\n  %s: %s", filepath.Base(file.Path), reason)
	}
	return b.String()
}

// ProbeFunc decodes one file's headers, typically a closure over
// ffprobe.Inspect with the configured binary.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Validator checks a batch of input files at a configured strictness level.
type Validator struct {
	logger *slog.Logger
	level  Level
	probe  ProbeFunc
}

func New(logger *slog.Logger, level Level, probe ProbeFunc) *Validator {
	return &Validator{
		logger: logging.NewComponentLogger(logger, "validation"),
		level:  level,
		probe:  probe,
	}
}

// ValidateAll checks every input and returns the valid subset together with
// the full report. Zero valid files is a validation error; a partially
// invalid batch is not, the caller decides whether to continue.
func (v *Validator) ValidateAll(ctx context.Context, inputs []jobs.InputFile) ([]jobs.InputFile, *Report, error) {
	report := &Report{Level: v.level}
	var valid []jobs.InputFile

	for _, input := range inputs {
		file := v.validateOne(ctx, input.Path)
		report.Files = append(report.Files, file)
		if file.Valid {
			valid = append(valid, input)
		} else {
			v.logger.Warn("input failed validation",
				logging.String("path", input.Path),
				logging.String("reason", strings.Join(file.Errors, "; ")),
			)
		}
	}

	v.logger.Info("validation complete",
		logging.Int("valid", len(valid)),
		logging.Int("total", len(inputs)),
		logging.String("level", string(v.level)),
	)
	if len(inputs) > 0 && len(valid) == 0 {
		return nil, report, jobs.Wrap(jobs.ErrValidation, "validation", "batch",
			"no valid input files", nil)
	}
	return valid, report, nil
}

func (v *Validator) validateOne(ctx context.Context, path string) FileReport {
	file := FileReport{Path: path}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		file.Errors = append(file.Errors, fmt.Sprintf("not accessible: %v", err))
		return file
	case info.IsDir():
		file.Errors = append(file.Errors, "path is a directory")
		return file
	case info.Size() == 0:
		file.Errors = append(file.Errors, "file is empty")
		return file
	}
	if info.Size() < 1024 {
		file.Warnings = append(file.Warnings, fmt.Sprintf("very small file (%d bytes)", info.Size()))
	}
	if !SupportedExtension(path) {
		file.Errors = append(file.Errors, fmt.Sprintf("unsupported extension %q", filepath.Ext(path)))
		return file
	}

	if v.level == LevelLax {
		file.Valid = true
		return file
	}

	result, err := v.probe(ctx, path)
	if err != nil {
		file.Errors = append(file.Errors, fmt.Sprintf("undecodable: %v", err))
		return file
	}
	file.DurationMS = result.DurationMS()
	if file.DurationMS <= 0 {
		file.Errors = append(file.Errors, "no audio duration")
		return file
	}
	if result.AudioStreamCount() == 0 {
		file.Errors = append(file.Errors, "no audio stream")
		return file
	}

	if v.level == LevelStrict {
		v.checkStreamSanity(result, &file)
		if len(file.Errors) > 0 {
			return file
		}
	}

	file.Valid = true
	return file
}

var commonSampleRates = map[int]struct{}{
	8000: {}, 11025: {}, 16000: {}, 22050: {}, 32000: {},
	44100: {}, 48000: {}, 96000: {}, 192000: {},
}

func (v *Validator) checkStreamSanity(result ffprobe.Result, file *FileReport) {
	for _, stream := range result.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if stream.CodecName == "" {
			file.Errors = append(file.Errors, "audio stream has no codec")
			return
		}
		if rate := stream.SampleRateHz(); rate > 0 {
			if _, ok := commonSampleRates[rate]; !ok {
				file.Warnings = append(file.Warnings, fmt.Sprintf("unusual sample rate %d Hz", rate))
			}
		}
		if stream.Channels > 2 {
			file.Warnings = append(file.Warnings, fmt.Sprintf("%d channels will be downmixed to stereo", stream.Channels))
		}
	}
}
