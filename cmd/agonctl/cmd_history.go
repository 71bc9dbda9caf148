package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agon/internal/stats"
	"agon/pkg/agon"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Print the generation history of a session",
		Long: `History prints the persisted per-generation statistics of one session,
selected by id or with --latest.

Examples:
  agonctl history --latest
  agonctl history 2f9c... --limit 10 --json
  agonctl history --latest --csv series.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			latest, _ := cmd.Flags().GetBool("latest")
			limit, _ := cmd.Flags().GetInt("limit")
			csvPath, _ := cmd.Flags().GetString("csv")
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			history, err := client.History(cmd.Context(), agon.HistoryRequest{
				SessionID: id,
				Latest:    latest,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			if csvPath != "" {
				if csvPath == "-" {
					return stats.WriteHistoryCSVTo(cmd.OutOrStdout(), history)
				}
				file, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				defer file.Close()
				if err := stats.WriteHistoryCSVTo(file, history); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d generations to %s\n", len(history), csvPath)
				return nil
			}

			if jsonOut {
				return printJSON(cmd, map[string]any{"history": history, "count": len(history)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%4s  %5s  %9s  %9s  %9s  %5s  %s\n",
				"GEN", "POP", "AVG", "MAX", "MIN", "COOP", "BATTLES")
			for _, rec := range history {
				fmt.Fprintf(out, "%4d  %5d  %9.2f  %9.2f  %9.2f  %4.0f%%  %d\n",
					rec.Generation, rec.Stats.Population, rec.Stats.AvgScore,
					rec.Stats.MaxScore, rec.Stats.MinScore,
					rec.CooperationRate*100, rec.Stats.TotalBattles)
			}
			return nil
		},
	}
	cmd.Flags().Bool("latest", false, "Use the most recent session")
	cmd.Flags().Int("limit", 0, "Trailing generations to show (0 means all)")
	cmd.Flags().String("csv", "", "Write the history as CSV to this file (- for stdout)")
	return cmd
}
