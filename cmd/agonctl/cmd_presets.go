package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the known configuration presets",
		Long: `Presets lists the builtin configurations plus any merged from the file
given with --presets-file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			items := client.Presets()
			if jsonOut {
				return printJSON(cmd, map[string]any{"presets": items, "count": len(items)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s  %9s  %5s  %5s  %8s  %-10s  %s\n",
				"PRESET", "WORLD", "POP", "GENS", "BATTLES", "SELECTION", "CROSSOVER")
			for _, item := range items {
				cfg := item.Config
				fmt.Fprintf(out, "%-12s  %4dx%-4d  %5d  %5d  %8d  %-10s  %s\n",
					item.Name, cfg.WorldWidth, cfg.WorldHeight, cfg.PopulationSize,
					cfg.MaxGenerations, cfg.BattlesPerGeneration, cfg.Selection, cfg.Crossover)
			}
			return nil
		},
	}
}
