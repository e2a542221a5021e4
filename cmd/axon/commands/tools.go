package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/logging"
	"github.com/axon-agent/axon/internal/tools"
)

// NewToolsCmd constructs the `axon tools` command group for inspecting the
// tool registry and invoking tools from the command line.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools and call them",
	}

	cmd.AddCommand(
		newToolsListCmd(),
		newToolsCallCmd(),
		newToolsHealthCmd(),
	)

	return cmd
}

// newToolsListCmd constructs `axon tools list`.
func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools with transport and capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("tools list: %w", err)
			}
			defer eng.Close()

			descs := eng.Registry().List()
			if len(descs) == 0 {
				fmt.Println("no tools registered (set AXON_PLUGINS_DIR to a manifest directory)")
				return nil
			}
			for _, d := range descs {
				fmt.Printf("%-20s %-6s %s", d.Name, d.Transport, d.Address)
				if len(d.Capabilities) > 0 {
					fmt.Printf("  [%s]", strings.Join(d.Capabilities, ", "))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

// newToolsCallCmd constructs `axon tools call`.
func newToolsCallCmd() *cobra.Command {
	var (
		argsJSON string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a registered tool and print its response",
		Long: `Invoke a registered tool through the permission gate and health tracker,
exactly as the serving engine would. Arguments are passed as a JSON object.

Example:
  axon tools call weather --args '{"city": "Oslo"}' --timeout 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("tools call: %w", err)
			}
			defer eng.Close()

			var toolArgs map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("tools call: parse --args: %w", err)
				}
			}

			resp, err := eng.CallTool(ctx, args[0], toolArgs, timeout)
			if err != nil {
				return fmt.Errorf("tools call: %w", err)
			}
			if resp.Error != nil {
				return fmt.Errorf("tools call: %s reported: %s", args[0], *resp.Error)
			}
			fmt.Println(string(resp.Result))
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", tools.DefaultCallTimeout, "Per-call timeout")
	return cmd
}

// newToolsHealthCmd constructs `axon tools health`.
func newToolsHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show per-tool health derived from recent calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("tools health: %w", err)
			}
			defer eng.Close()

			names := eng.Tracker().Tools()
			if len(names) == 0 {
				fmt.Println("no tool calls recorded")
				return nil
			}
			for _, name := range names {
				st := eng.Tracker().Stats(name)
				fmt.Printf("%-20s %-9s %5.1f%% success, avg %s, p95 %s (%d calls)\n",
					name, st.Health, st.SuccessRate*100,
					st.AvgLatency.Round(time.Millisecond),
					st.P95.Round(time.Millisecond),
					st.TotalCalls,
				)
			}
			return nil
		},
	}
}
