package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var digest string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded conversion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, listErr := store.ListRuns(cmd.Context(), limit)
			if digest != "" {
				runs, listErr = store.RunsForDigest(cmd.Context(), digest)
			}
			if listErr != nil {
				return listErr
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.CreatedAt.Local().Format("2006-01-02 15:04"),
					run.Status,
					run.OutputPath,
					strconv.Itoa(run.InputCount),
					strconv.Itoa(run.ConvertedCount),
					strconv.Itoa(run.ResumedCount),
					strconv.Itoa(run.FailedCount),
					formatAudioDuration(run.TotalAudioMS),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Status", "Output", "Inputs", "Converted", "Resumed", "Failed", "Audio"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&digest, "job", "", "Show runs for one job digest")
	return cmd
}
