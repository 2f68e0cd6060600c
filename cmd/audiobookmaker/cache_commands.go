package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiobookmaker/internal/janitor"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the conversion cache",
	}
	cmd.AddCommand(newCacheListCommand(ctx))
	cmd.AddCommand(newCacheSweepCommand(ctx))
	cmd.AddCommand(newCacheClearCommand(ctx))
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := newJanitor(ctx)
			if err != nil {
				return err
			}
			entries, err := j.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cache is empty.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			var total int64
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Digest,
					humanize.IBytes(uint64(entry.SizeBytes)),
					humanize.Time(entry.ModTime),
				})
				total += entry.SizeBytes
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Size", "Last Used"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d cached jobs, %s total\n", len(entries), humanize.IBytes(uint64(total)))
			return nil
		},
	}
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove cached jobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			j, err := newJanitor(ctx)
			if err != nil {
				return err
			}
			days := olderThanDays
			if days <= 0 {
				days = cfg.Cache.RetentionDays
			}
			result, err := j.Sweep(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			printSweepResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Retention in days (default: configured retention)")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := newJanitor(ctx)
			if err != nil {
				return err
			}
			result, err := j.Clear()
			if err != nil {
				return err
			}
			printSweepResult(cmd, result)
			return nil
		},
	}
}

func newJanitor(ctx *commandContext) (*janitor.Janitor, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	return janitor.New(logger, cfg.Cache.Root), nil
}

func printSweepResult(cmd *cobra.Command, result janitor.SweepResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Removed %d cached jobs, freed %s\n",
		result.Removed, humanize.IBytes(uint64(result.FreedBytes)))
	if result.Failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d cache directories could not be removed; see the log\n", result.Failed)
	}
}
