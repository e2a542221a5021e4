// Package commands defines all Cobra CLI commands for the axon binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/audit"
	"github.com/axon-agent/axon/internal/config"
	"github.com/axon-agent/axon/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "axon",
		Short: "Axon — persistent memory and tool routing for a personal agent",
		Long: `Axon is a local-first memory engine for a personal knowledge agent.

It keeps two synchronised memory layers — a structured SQLite fact store and
a semantic vector index — and routes tool calls to external plugin servers
with capability-based permission checks and per-tool health tracking.

Backends are selected via environment variables or a YAML config file
(~/.axon/config.yaml). See 'axon --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.axon/config.yaml)")

	root.AddCommand(
		NewRememberCmd(),
		NewRecallCmd(),
		NewFactsCmd(),
		NewToolsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
