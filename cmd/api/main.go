package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/explab-api/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "explab-api",
	Short:         "Experiment lab submission and evaluation API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, evaluateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
