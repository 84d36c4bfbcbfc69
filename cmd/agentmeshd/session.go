package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexus-contrib/agentmesh/internal/snapshot"
)

// buildSessionCmd creates the "session" command group for offline
// inspection of the durable snapshot store (internal/snapshot) — the
// opt-in persistence path a running server's /save command writes to.
func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect durably-saved sessions",
	}
	cmd.AddCommand(buildSessionInspectCmd(), buildSessionReplayCmd())
	return cmd
}

func buildSessionInspectCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List sessions saved to the durable snapshot store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(dsn)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No saved sessions.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "  %-36s user=%-12s saved_at=%s size=%dB\n",
					r.SessionID, r.UserID, r.SavedAt.Format("2006-01-02T15:04:05Z07:00"), r.SizeBytes)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "agentmesh.db", "Path to the snapshot SQLite database")
	return cmd
}

func buildSessionReplayCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Print a saved session's snapshot as formatted JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(dsn)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			data, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var pretty map[string]any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}
			formatted, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "agentmesh.db", "Path to the snapshot SQLite database")
	return cmd
}
