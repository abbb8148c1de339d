// Package commands defines all Cobra CLI commands for the docsqa binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chaicode/docsqa-go/internal/audit"
	"github.com/chaicode/docsqa-go/internal/config"
	"github.com/chaicode/docsqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsqa",
		Short: "Question answering over the Chai aur Code documentation",
		Long: `docsqa answers natural language questions using the Chai aur Code
documentation corpus (HTML, Git, C++, Django, SQL, DevOps).

Questions are checked for relevance, matched against a Qdrant vector index
of documentation chunks, and answered with source links from the docs.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.docsqa/config.yaml).
See 'docsqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine — env vars may come from the shell.
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docsqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
