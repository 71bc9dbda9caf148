package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agon/pkg/agon"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Copy a session's artifact files to a directory",
		Long: `Export copies the artifact files of one session (configuration, record,
generation history, final agents, CSV series) to the output directory.

Examples:
  agonctl export --latest
  agonctl export 2f9c... --out /tmp/report`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), agon.ExportRequest{
				SessionID: id,
				Latest:    latest,
				OutDir:    outDir,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported session %s to %s\n", summary.SessionID, summary.Dir)
			return nil
		},
	}
	cmd.Flags().Bool("latest", false, "Export the most recent session")
	cmd.Flags().String("out", "", "Output directory (defaults to the exports directory)")
	return cmd
}
