package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/repository"
	"github.com/noah-isme/explab-api/internal/service"
)

var seedFiles []string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load experiments, tasks and questions from JSON catalog files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(seedFiles) == 0 {
			return errors.New("at least one --file is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.AppEnv)

		db, err := connect(cfg, logger)
		if err != nil {
			return err
		}

		seeder := service.NewSeedService(repository.NewCatalogWriter(db), validator.New(validator.WithRequiredStructEnabled()), logger)
		fs := afero.NewOsFs()
		for _, path := range seedFiles {
			raw, err := afero.ReadFile(fs, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			var seed dto.CatalogSeed
			if err := json.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			if _, err := seeder.SeedCatalog(cmd.Context(), seed); err != nil {
				return fmt.Errorf("seed %s: %w", path, err)
			}
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringArrayVarP(&seedFiles, "file", "f", nil, "catalog JSON file, repeatable")
}
