package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/explab-api/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.AppEnv)

		db, err := connect(cfg, logger)
		if err != nil {
			return err
		}

		if err := db.AutoMigrate(models.AllModels()...); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		logger.Info().Int("tables", len(models.AllModels())).Msg("database migrated")
		return nil
	},
}
