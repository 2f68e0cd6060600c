package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiobookmaker/internal/jobs"
	"audiobookmaker/internal/pipeline"
	"audiobookmaker/internal/shutdown"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var (
		outputPath string
		outputDir  string
		outputName string
		template   string
		title      string
		author     string
		coverPath  string
		resumeFlag string
		clearCache bool
		overwrite  bool
		bitrate    string
		cores      int
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "build [files or directories...]",
		Short: "Convert audio files into a single M4B audiobook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if bitrate != "" {
				cfg.Audio.Bitrate = bitrate
			}
			if cores > 0 {
				cfg.Audio.Cores = cores
			}

			if clearCache {
				resumeFlag = string(pipeline.ResumeNever)
			}
			resumeMode, err := pipeline.ParseResumeMode(resumeFlag)
			if err != nil {
				return err
			}

			coordinator := shutdown.NewCoordinator(logger)
			coordinator.Install()
			defer coordinator.Shutdown()

			store, err := ctx.openHistory()
			if err != nil {
				logger.Warn("run history unavailable", "error", err)
				store = nil
			} else {
				defer store.Close()
			}

			processor := pipeline.NewDefault(cfg, logger, coordinator, store)
			out := cmd.OutOrStdout()
			if !quiet {
				processor.Observe(func(task jobs.ConversionTask, completed, total int) {
					name := filepath.Base(task.Input.Path)
					switch task.Status {
					case jobs.StatusDone:
						fmt.Fprintf(out, "[%d/%d] converted %s\n", completed, total, name)
					case jobs.StatusResumedSkip:
						fmt.Fprintf(out, "[%d/%d] resumed %s\n", completed, total, name)
					case jobs.StatusFailedRecoverable, jobs.StatusFailedFatal:
						fmt.Fprintf(out, "[%d/%d] FAILED %s: %v\n", completed, total, name, task.Err)
					}
				}, nil)
			}

			result, err := processor.Run(cmd.Context(), pipeline.Request{
				InputPaths: args,
				OutputPath: outputPath,
				OutputDir:  outputDir,
				OutputName: outputName,
				Template:   template,
				Title:      title,
				Author:     author,
				CoverPath:  coverPath,
				Resume:     resumeMode,
				Overwrite:  overwrite,
			})
			if err != nil {
				if result != nil && result.FailureSummary() != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), result.FailureSummary())
				}
				return err
			}

			fmt.Fprintf(out, "Audiobook created: %s\n", result.OutputPath)
			fmt.Fprintf(out, "  Duration: %s across %d chapters\n",
				formatAudioDuration(result.TotalDurationMS), len(result.Chapters))
			fmt.Fprintf(out, "  Converted %d, resumed %d, failed %d (took %s)\n",
				result.Converted, result.Resumed, len(result.Failures),
				result.Took.Round(time.Second))
			if result.PeakRSSMB > 0 {
				fmt.Fprintf(out, "  Peak memory: %s\n", humanize.IBytes(uint64(result.PeakRSSMB)<<20))
			}
			if summary := result.FailureSummary(); summary != "" {
				fmt.Fprintln(out, summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Full path for the output audiobook")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the output audiobook (default: first input's directory)")
	cmd.Flags().StringVar(&outputName, "output-name", "", "Filename for the output audiobook (default: from template)")
	cmd.Flags().StringVar(&template, "template", "", "Filename template using {title}, {author}, {album}, {year}")
	cmd.Flags().StringVar(&title, "title", "", "Override the audiobook title")
	cmd.Flags().StringVar(&author, "author", "", "Override the audiobook author")
	cmd.Flags().StringVar(&coverPath, "cover", "", "Cover art image to embed")
	cmd.Flags().StringVar(&resumeFlag, "resume", "auto", "Resume behavior: auto, never, or force")
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear cached conversions first (same as --resume never)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the output file if it exists")
	cmd.Flags().StringVar(&bitrate, "bitrate", "", "AAC bitrate, e.g. 128k")
	cmd.Flags().IntVar(&cores, "cores", 0, "Parallel conversion workers")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-file progress output")

	return cmd
}

func formatAudioDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	}
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}
