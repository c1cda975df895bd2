package main

import (
	"github.com/spf13/cobra"

	"pageengine/internal/config"
	"pageengine/internal/logging"
)

var cfg *config.Config

func newRootCmd() (*cobra.Command, error) {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pagectl",
		Short: "pagectl drives the generic-XLOG-backed storage stack",
		Long:  `pagectl exercises the buffer manager, WAL writer, and bloom access method without a surrounding SQL engine.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Init(cfg.LogLevel)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml/json/toml); defaults are used if omitted")

	rootCmd.AddCommand(newBloomCmd())
	rootCmd.AddCommand(newWALCmd())
	rootCmd.AddCommand(newAMCmd())

	return rootCmd, nil
}
