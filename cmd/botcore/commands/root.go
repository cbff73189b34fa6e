// Package commands defines all Cobra CLI commands for the botcore binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/botforge/botcore/internal/audit"
	"github.com/botforge/botcore/internal/config"
	"github.com/botforge/botcore/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "botcore",
		Short: "botcore — retrieval and matching engine for multi-tenant store chatbots",
		Long: `botcore powers customer-facing chatbots for online stores.

Each tenant (bot) has its own trained knowledge: free text, web pages,
curated question/answer pairs, business facts, and a product catalog.
Incoming messages are answered by direct matching when possible, by
retrieval-augmented generation otherwise, and product photos are matched
against the catalog by visual description.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.botcore/config.yaml).
See 'botcore --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is optional; real env vars always win.
			_ = godotenv.Load()

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.botcore/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewTrainCmd(),
		NewCatalogCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
