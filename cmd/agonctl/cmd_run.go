package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"agon/internal/model"
	"agon/pkg/agon"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session to its generation cap and persist it",
		Long: `Run evolves a fresh session as fast as the engine allows, then stores
the session record, its generation history and the artifact directory.

Examples:
  agonctl run --preset skirmish
  agonctl run --population 32 --max-generations 50 --seed 7
  agonctl --store sqlite --db-path agon.db run --preset endurance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			preset, _ := cmd.Flags().GetString("preset")
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

			req := agon.RunRequest{Preset: preset, Patch: patch}
			out := cmd.OutOrStdout()
			if !jsonOut {
				req.OnGeneration = func(rec model.GenerationRecord) {
					fmt.Fprintf(out, "gen %4d  avg %8.2f  max %8.2f  coop %3.0f%%  battles %d\n",
						rec.Generation, rec.Stats.AvgScore, rec.Stats.MaxScore,
						rec.CooperationRate*100, rec.Stats.TotalBattles)
				}
			}

			summary, err := client.Run(ctx, req)
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
	return cmd
}

func printRunSummary(out io.Writer, summary agon.RunSummary) {
	state := "stopped early"
	if summary.Finished {
		state = "finished"
	}
	fmt.Fprintf(out, "\nSession %s (%s)\n", summary.SessionID, summary.Preset)
	fmt.Fprintf(out, "  generations:  %d (%s)\n", summary.Generations, state)
	fmt.Fprintf(out, "  progress:     %.0f%%\n", summary.Progress)
	fmt.Fprintf(out, "  avg score:    %.2f\n", summary.FinalStats.AvgScore)
	fmt.Fprintf(out, "  cooperation:  %.0f%%\n", summary.CooperationRate*100)
	fmt.Fprintf(out, "  artifacts:    %s\n", summary.ArtifactsDir)
}
