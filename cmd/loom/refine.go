package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/loom/internal/logbook"
	"github.com/kingrea/loom/internal/logging"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/recursion"
	"github.com/kingrea/loom/internal/refine"
	"github.com/kingrea/loom/internal/workflow/engine"
)

func newRefineCommand(projectDir *string) *cobra.Command {
	var (
		sets        []string
		target      float64
		callCost    float64
		evaluatorID string
		reviserID   string
		scoreKey    string
	)
	cmd := &cobra.Command{
		Use:   "refine [workflow]",
		Short: "Run a workflow, then iteratively refine its result under hard recursion ceilings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject(*projectDir)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			def, err := resolveDefinition(cfg, name)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			ec, err := contextFromFlags(sets)
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.ProjectDir)
			if err != nil {
				return err
			}
			defer log.Close()
			book, err := logbook.New(filepath.Join(cfg.LogsDir(), "journal.log"))
			if err != nil {
				return err
			}

			ctrl, err := engine.New(reg, engine.WithLogger(log), engine.WithLogbook(book))
			if err != nil {
				return err
			}
			report, err := ctrl.RunAll(cmd.Context(), def, ec)
			if err != nil {
				return err
			}
			if err := engine.NewRunStore(cfg.RunsDir()).Save(report); err != nil {
				log.Warnf("run report not persisted: %v", err)
			}

			manager, err := recursion.New(
				recursion.ConfigFromProject(cfg.Project.Refinement),
				recursion.WithLogger(log),
				recursion.WithCheckpoint(journalCheckpoint(cmd, log, book)),
			)
			if err != nil {
				return err
			}
			evaluator, err := moduleEvaluator(reg, evaluatorID, scoreKey)
			if err != nil {
				return err
			}
			reviser, err := moduleReviser(reg, reviserID)
			if err != nil {
				return err
			}
			loop, err := refine.New(manager, evaluator, reviser,
				refine.WithTarget(target),
				refine.WithCallCost(callCost),
				refine.WithLogbook(book),
				refine.WithLogger(log),
			)
			if err != nil {
				return err
			}

			result, err := loop.Run(cmd.Context(), report.RunID, ec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "refinement %s: score=%.3f after %d iteration(s), stopped: %s\n",
				result.RootID, result.FinalScore, len(result.Iterations), result.Reason)
			for _, iter := range result.Iterations {
				verdict := "rejected"
				if iter.Accepted {
					verdict = "accepted"
				}
				fmt.Fprintf(out, "  %d: %s %s\n", iter.Index, verdict, iter.Note)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "seed a context value, key=value (repeatable)")
	cmd.Flags().Float64Var(&target, "target", 0.9, "quality score at which refinement stops")
	cmd.Flags().Float64Var(&callCost, "cost", 1, "budget charged per revision call")
	cmd.Flags().StringVar(&evaluatorID, "evaluator", "review", "module that scores the context")
	cmd.Flags().StringVar(&reviserID, "reviser", "consolidate", "module that proposes revisions")
	cmd.Flags().StringVar(&scoreKey, "score-key", "quality", "context key the evaluator writes its score to")
	return cmd
}

// journalCheckpoint surfaces near-ceiling refinement calls to the operator
// and lets them proceed. The warning lands on the terminal, the log, and the
// run journal so the spend is visible before the ceiling is hit.
func journalCheckpoint(cmd *cobra.Command, log *logging.Logger, book *logbook.Logbook) recursion.Checkpoint {
	return func(snap recursion.Snapshot) bool {
		note := fmt.Sprintf("refinement checkpoint root=%s depth=%d children=%d budget_remaining=%v",
			snap.RootID, snap.Depth, snap.ChildrenGenerated, snap.BudgetRemaining)
		fmt.Fprintln(cmd.ErrOrStderr(), note)
		log.Warnf("%s", note)
		book.Append(logbook.LevelWarn, note)
		return true
	}
}

// moduleEvaluator scores the context by running a registered module and
// reading a numeric score from its output.
func moduleEvaluator(reg *module.Registry, id, scoreKey string) (refine.Evaluator, error) {
	entry, err := reg.Require(id)
	if err != nil {
		return nil, err
	}
	return refine.EvaluatorFunc(func(ctx context.Context, ec *module.Context) (float64, error) {
		updates, err := entry.Runner.Run(ctx, ec)
		if err != nil {
			return 0, err
		}
		score, ok := numericValue(updates[scoreKey])
		if !ok {
			return 0, fmt.Errorf("module %s produced no numeric %q", id, scoreKey)
		}
		return score, nil
	}), nil
}

// moduleReviser proposes revisions by running a registered module.
func moduleReviser(reg *module.Registry, id string) (refine.Reviser, error) {
	entry, err := reg.Require(id)
	if err != nil {
		return nil, err
	}
	return refine.ReviserFunc(func(ctx context.Context, ec *module.Context, _ float64) (map[string]any, error) {
		return entry.Runner.Run(ctx, ec)
	}), nil
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
