package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agon/pkg/agon"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance a throwaway session by hand and inspect the result",
		Long: `Step creates a fresh session, advances it by single battle rounds and
whole generations, and prints the resulting state. Nothing is persisted.

Examples:
  agonctl step --rounds 3
  agonctl step --preset skirmish --generations 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			preset, _ := cmd.Flags().GetString("preset")
			rounds, _ := cmd.Flags().GetInt("rounds")
			generations, _ := cmd.Flags().GetInt("generations")
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Step(cmd.Context(), agon.StepRequest{
				Preset:      preset,
				Patch:       patch,
				Rounds:      rounds,
				Generations: generations,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			s := res.Snapshot.Stats
			c := res.Derived.Categories
			fmt.Fprintf(out, "status: %s\n", res.Status)
			fmt.Fprintf(out, "gen %d  pop %d  avg %.2f  max %.2f  min %.2f\n",
				s.Generation, s.Population, s.AvgScore, s.MaxScore, s.MinScore)
			fmt.Fprintf(out, "cooperators %d/%d (%.0f%%)  battles %d  progress %.0f%%\n",
				c.Cooperators, c.Alive, c.CooperationRate*100, s.TotalBattles, res.Derived.Progress)
			return nil
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().Int("rounds", 0, "Battle rounds to advance")
	cmd.Flags().Int("generations", 0, "Whole generations to advance")
	return cmd
}
