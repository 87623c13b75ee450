package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var evaluateSubmissionID uint

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade a stored submission and print the evaluation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if evaluateSubmissionID == 0 {
			return errors.New("--submission is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.AppEnv)

		application, err := buildApplication(cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		evaluation, err := application.evaluations.EvaluateSubmission(cmd.Context(), evaluateSubmissionID)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(evaluation)
	},
}

func init() {
	evaluateCmd.Flags().UintVar(&evaluateSubmissionID, "submission", 0, "id of the submission to grade")
}
