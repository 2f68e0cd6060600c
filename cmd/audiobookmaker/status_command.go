package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiobookmaker/internal/deps"
	"audiobookmaker/internal/resources"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check external dependencies and resource headroom",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := deps.CheckBinaries(deps.PipelineRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
			rows := make([][]string, 0, len(statuses))
			missing := 0
			for _, status := range statuses {
				state := "ok"
				detail := status.Command
				if !status.Available {
					state = "MISSING"
					detail = status.Detail
					missing++
				} else if status.Name == "FFmpeg" {
					if version, vErr := deps.FFmpegVersion(cmd.Context(), status.Command); vErr == nil {
						detail = version
					}
				}
				rows = append(rows, []string{status.Name, state, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "State", "Detail"}, rows, nil))

			monitor := resources.NewMonitor(logger, cfg.Limits.MemoryLimitMB, cfg.Limits.DiskMarginMB)
			fmt.Fprintf(out, "\nCache root: %s\n", cfg.Cache.Root)
			fmt.Fprintf(out, "Memory limit: %s\n", humanize.IBytes(uint64(monitor.MemoryLimitMB())<<20))
			if rss := resources.SampleRSSMB(); rss > 0 {
				fmt.Fprintf(out, "Current memory: %s\n", humanize.IBytes(uint64(rss)<<20))
			}
			if err := monitor.CheckDisk(cfg.Cache.Root, 0); err != nil {
				fmt.Fprintf(out, "Disk: %v\n", err)
			} else {
				fmt.Fprintln(out, "Disk: ok")
			}

			if missing > 0 {
				return fmt.Errorf("%d required dependencies missing", missing)
			}
			return nil
		},
	}
}
