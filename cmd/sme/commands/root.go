// Package commands defines all Cobra CLI commands for the sme binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/sme-labs/sme-go/internal/audit"
	"github.com/sme-labs/sme-go/internal/config"
	"github.com/sme-labs/sme-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sme",
		Short: "SME, the signal memory engine",
		Long: `SME is a signal memory engine: it routes incoming user signals to named
handling agents, scores retrieved memories into trust flags, persists every
routed event, and answers queries against per-agent memory stores with a
hosted LLM.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.sme/config.yaml).
See 'sme --help' for available commands.`,
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.sme/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewRouteCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
