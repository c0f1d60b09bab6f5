package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/loom/internal/contracts"
	"github.com/kingrea/loom/internal/workflow"
)

func newValidateCommand(projectDir *string) *cobra.Command {
	var checkCoverage bool
	cmd := &cobra.Command{
		Use:   "validate <workflow-file-or-name>",
		Short: "Check a workflow document for structural problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject(*projectDir)
			if err != nil {
				return err
			}
			path := args[0]
			if _, statErr := os.Stat(path); statErr != nil {
				// Not a file on disk; treat it as a workflow name.
				path = filepath.Join(cfg.WorkflowDir(), workflowFileName(args[0]))
			}
			report, err := contracts.ValidateDefinitionFile(path)
			if err != nil {
				return err
			}
			if checkCoverage {
				def, err := workflow.LoadDefinitionFile(path)
				if err == nil {
					reg, regErr := buildRegistry(cfg)
					if regErr != nil {
						return regErr
					}
					report.Errors = append(report.Errors, contracts.ValidateCoverage(def, reg)...)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "metrics: completeness=%.2f connectivity=%.2f balance=%.2f overall=%.2f\n",
				report.Metrics.Completeness, report.Metrics.Connectivity,
				report.Metrics.Balance, report.Metrics.Overall())
			if report.IsValid() {
				fmt.Fprintf(out, "OK: %s (%s)\n", report.Path, report.WorkflowID)
				return nil
			}
			fmt.Fprintf(out, "Invalid: %s (%s)\n", report.Path, report.WorkflowID)
			for _, validationErr := range report.Errors {
				fmt.Fprintf(out, "- %v\n", validationErr)
			}
			return fmt.Errorf("%d validation problem(s)", len(report.Errors))
		},
	}
	cmd.Flags().BoolVar(&checkCoverage, "coverage", false, "also require every module to have a registered implementation")
	return cmd
}
