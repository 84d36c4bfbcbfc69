// Command agentmeshd is the process entry point for the multi-agent
// conversational runtime: it loads configuration, wires the shared
// collaborators (tool registry, mailbox, prompt assembler, model
// providers, session manager, async agent manager), and serves the §6
// JSON-RPC/WebSocket wire contract.
//
// Grounded on the teacher's cmd/nexus/main.go: a cobra root command with
// a persistent --profile flag, a "serve" subcommand doing the real
// startup work, and signal.NotifyContext-driven graceful shutdown.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentmeshd",
		Short:        "agentmeshd - multi-agent conversational runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildSessionCmd(),
		buildToolCmd(),
	)
	return root
}
