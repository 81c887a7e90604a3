package main

import (
	"os"

	"github.com/spf13/cobra"

	"wpsync/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncer",
	Short: "Mirror WordPress content into PostgreSQL",
	Long: `syncer fetches content from a WordPress REST API and reconciles it
with local records: new items are created, changed items updated and items
gone from the source deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger, _ := logging.New(logging.Options{Level: "info", Format: "text"})
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
}
