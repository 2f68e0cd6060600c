package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"audiobookmaker/internal/jobs"
)

var commandContext = exec.CommandContext

// ProgressUpdate reports conversion progress for one input file. OutTimeMS is
// the output timestamp ffmpeg has reached; callers that know the source
// duration can derive a percentage.
type ProgressUpdate struct {
	OutTimeMS int64
	Speed     string
}

// Transcoder defines the external conversion behaviour the pipeline needs.
type Transcoder interface {
	Convert(ctx context.Context, inputPath, outputPath string, params jobs.EncodeParams, progress func(ProgressUpdate)) error
	Concat(ctx context.Context, listPath, outputPath string) error
	Embed(ctx context.Context, inputPath, metadataPath, coverPath, outputPath string) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ffmpeg command-line tool.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Convert transcodes inputPath to an AAC fragment at outputPath, normalizing
// sample rate and channel count so later concatenation can stream-copy.
// Progress events are delivered to the injected callback as ffmpeg reports
// them; pass nil to ignore progress.
func (c *CLI) Convert(ctx context.Context, inputPath, outputPath string, params jobs.EncodeParams, progress func(ProgressUpdate)) error {
	if inputPath == "" {
		return errors.New("input path required")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	args := []string{
		"-y", "-nostdin", "-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
		"-i", inputPath,
		"-vn",
		"-c:a", "aac",
		"-b:a", params.Bitrate,
		"-ar", strconv.Itoa(params.SampleRate),
		"-ac", strconv.Itoa(params.Channels),
		outputPath,
	}

	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	update := ProgressUpdate{}
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Despite the name, ffmpeg reports out_time_ms in microseconds.
			if us, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil {
				update.OutTimeMS = us / 1000
			}
		case "speed":
			update.Speed = strings.TrimSpace(value)
		case "progress":
			if progress != nil {
				progress(update)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read ffmpeg output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg convert failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Concat merges the fragments listed in the concat manifest into outputPath
// using the concat demuxer in stream-copy mode. No audio is decoded, so peak
// memory stays constant regardless of the number of fragments.
func (c *CLI) Concat(ctx context.Context, listPath, outputPath string) error {
	if listPath == "" {
		return errors.New("concat list path required")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	args := []string{
		"-y", "-nostdin", "-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
	cmd := commandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Embed remuxes inputPath with tags and chapters from an FFMETADATA file and
// an optional cover image, writing the result to outputPath. Streams are
// copied, never re-encoded.
func (c *CLI) Embed(ctx context.Context, inputPath, metadataPath, coverPath, outputPath string) error {
	if inputPath == "" || metadataPath == "" || outputPath == "" {
		return errors.New("input, metadata, and output paths required")
	}

	args := []string{"-y", "-nostdin", "-loglevel", "error", "-i", inputPath, "-i", metadataPath}
	if coverPath != "" {
		args = append(args, "-i", coverPath)
	}
	args = append(args, "-map_metadata", "1", "-map_chapters", "1", "-map", "0:a")
	if coverPath != "" {
		args = append(args, "-map", "2:v", "-disposition:v:0", "attached_pic")
	}
	args = append(args, "-c", "copy", outputPath)

	cmd := commandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg embed failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

var _ Transcoder = (*CLI)(nil)
