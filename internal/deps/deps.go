package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"audiobookmaker/internal/jobs"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// PipelineRequirements returns the external tools a conversion job needs.
func PipelineRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Required for conversion and concatenation",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Required for media inspection and validation",
		},
	}
}

// Verify runs the pipeline requirement checks and returns a fatal
// dependency error when a required binary is missing.
func Verify(ffmpegBinary, ffprobeBinary string) error {
	for _, status := range CheckBinaries(PipelineRequirements(ffmpegBinary, ffprobeBinary)) {
		if status.Available || status.Optional {
			continue
		}
		return jobs.Wrap(jobs.ErrDependencyUnavailable, "deps", "verify", status.Detail, nil)
	}
	return nil
}

// FFmpegVersion reports the first line of `ffmpeg -version` for status output.
func FFmpegVersion(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
