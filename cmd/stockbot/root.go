package main

import (
	"github.com/spf13/cobra"

	"stockbot/internal/config"
)

var version = "dev"

type rootFlags struct {
	config  string
	envFile string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "stockbot",
		Short:         "Chat bot for stock quotes, scheduled quote commands and scraping tasks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotenv(f.envFile)
		},
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "", "path to config file (json, jsonc or yaml); empty uses defaults and STOCKBOT_* env")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")

	cmd.AddCommand(newRunCmd(f), newExecCmd(f), newHelpTreeCmd(f))
	return cmd
}
