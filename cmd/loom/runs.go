package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/loom/internal/workflow/engine"
)

func newRunsCommand(projectDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List persisted runs, or show one run's ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject(*projectDir)
			if err != nil {
				return err
			}
			store := engine.NewRunStore(cfg.RunsDir())
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				ids, err := store.List()
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(out, "no runs recorded")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			report, err := store.Load(args[0])
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	return cmd
}
