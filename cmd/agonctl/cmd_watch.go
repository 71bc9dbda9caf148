package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"agon/internal/model"
	"agon/internal/stats"
	"agon/pkg/agon"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a session under the auto-run scheduler and stream its progress",
		Long: `Watch paces the session with the auto-run scheduler and prints one line
per completed generation. Interrupting with Ctrl-C stops the scheduler
and persists what completed so far.

Examples:
  agonctl watch --preset skirmish
  agonctl watch --population 24 --max-generations 40 --interval 500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			preset, _ := cmd.Flags().GetString("preset")
			interval, _ := cmd.Flags().GetDuration("interval")
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			req := agon.WatchRequest{Preset: preset, Patch: patch, Interval: interval}
			out := cmd.OutOrStdout()
			if !jsonOut {
				lastGen := -1
				req.OnSnapshot = func(snap model.Snapshot, derived stats.Derived) {
					if snap.Stats.Generation <= lastGen {
						return
					}
					lastGen = snap.Stats.Generation
					fmt.Fprintf(out, "gen %4d  pop %3d  avg %8.2f  coop %d/%d  progress %3.0f%%\n",
						snap.Stats.Generation, snap.Stats.Population, snap.Stats.AvgScore,
						derived.Categories.Cooperators, derived.Categories.Alive, derived.Progress)
				}
			}

			summary, err := client.Watch(ctx, req)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, summary)
			}
			printRunSummary(out, summary)
			return nil
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().Duration("interval", 200*time.Millisecond, "Delay between generations")
	return cmd
}
