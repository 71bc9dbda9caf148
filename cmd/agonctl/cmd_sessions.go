package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agon/pkg/agon"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Sessions(cmd.Context(), agon.SessionsRequest{Limit: limit})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, map[string]any{"sessions": items, "count": len(items)})
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-19s  %-10s  %11s  %5s  %s\n",
				"SESSION", "CREATED", "PRESET", "GENERATIONS", "COOP", "DONE")
			for _, item := range items {
				fmt.Fprintf(out, "%-36s  %-19s  %-10s  %5d/%-5d  %4.0f%%  %s\n",
					item.SessionID, shortTimestamp(item.CreatedAtUTC), item.Preset,
					item.Generations, item.MaxGenerations,
					item.AvgCooperation*100, yesNo(item.Finished))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum sessions to list (0 means 20)")
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a recorded session and its generation history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			latest, _ := cmd.Flags().GetBool("latest")
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			deleted, err := client.Delete(cmd.Context(), agon.DeleteRequest{SessionID: id, Latest: latest})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, map[string]string{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", deleted)
			return nil
		},
	}
	cmd.Flags().Bool("latest", false, "Delete the most recent session")
	return cmd
}

// shortTimestamp trims an RFC 3339 timestamp for table display; anything
// unparseable is shown as-is.
func shortTimestamp(ts string) string {
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return parsed.Format("2006-01-02 15:04:05")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
