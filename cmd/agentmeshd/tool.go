package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/internal/tools/mail"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// buildToolCmd creates the "tool" command group, a local catalog browser
// over the same Registry serve wires up — useful for checking what an
// agent config's ToolFilters would resolve to without starting a session.
func buildToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect the tool catalog",
	}
	cmd.AddCommand(buildToolListCmd(), buildToolDescribeCmd())
	return cmd
}

// catalogRegistry builds the same Registry contents serve does, minus any
// live model providers, so the catalog commands work without API keys.
func catalogRegistry() *tools.Registry {
	reg := tools.NewRegistry(slog.Default())
	mail.Register(reg, mailbox.New())
	return reg
}

func buildToolListCmd() *cobra.Command {
	var (
		toolSets []string
		tags     []string
		deny     []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools visible under a set of filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			view := catalogRegistry().FilterForAgent(models.ToolFilters{
				ToolSets: toolSets,
				Tags:     tags,
				Deny:     deny,
			})
			out := cmd.OutOrStdout()
			names := view.Names()
			if len(names) == 0 {
				fmt.Fprintln(out, "No tools visible under these filters.")
				return nil
			}
			for _, name := range names {
				t, _ := view.Get(name)
				fmt.Fprintf(out, "  %-24s %s\n", name, t.Description())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&toolSets, "set", nil, "Restrict to named tool sets")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Restrict to tagged tools")
	cmd.Flags().StringSliceVar(&deny, "deny", nil, "Exclude tool names")
	return cmd
}

func buildToolDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <name>",
		Short: "Print a tool's description and JSON schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := catalogRegistry().Get(args[0])
			if !ok {
				return fmt.Errorf("tool not found: %s", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", t.Name())
			fmt.Fprintf(out, "Category:    %s\n", t.Category())
			fmt.Fprintf(out, "Sets:        %v\n", t.Sets())
			fmt.Fprintf(out, "Tags:        %v\n", t.Tags())
			fmt.Fprintf(out, "Description: %s\n", t.Description())
			fmt.Fprintf(out, "Schema:      %s\n", string(t.Schema()))
			return nil
		},
	}
	return cmd
}
