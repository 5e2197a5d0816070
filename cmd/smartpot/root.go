package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "smartpot",
		Short: "Smart Pot Core - plant monitoring backend",
		Long: `Smart Pot Core stores pots, plants and sensor readings for registered
users and serves them over a token-protected REST API.

Configuration is read from a YAML file, then overridden by SMARTPOT_*
environment variables (a .env file is loaded first if present).

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", getConfigPath(),
		"config file path (env SMARTPOT_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env",
		"dotenv file loaded before the config")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses SMARTPOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTPOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the dotenv file and the configuration, and logs any
// warnings the loader collected.
func loadConfig(opts *globalOptions, log *logging.Logger) (*config.Config, error) {
	if opts.envFile != "" {
		if err := config.LoadDotEnv(opts.envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "detail", w)
	}
	return cfg, nil
}
