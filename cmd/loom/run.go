package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/loom/internal/config"
	"github.com/kingrea/loom/internal/eventbridge"
	"github.com/kingrea/loom/internal/logbook"
	"github.com/kingrea/loom/internal/logging"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/tui"
	"github.com/kingrea/loom/internal/workflow/engine"
	"github.com/kingrea/loom/internal/workflow/graph"
)

func newRunCommand(projectDir *string) *cobra.Command {
	var (
		useTUI bool
		sets   []string
	)
	cmd := &cobra.Command{
		Use:   "run [workflow]",
		Short: "Execute a workflow document phase by phase",
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

			opts := []engine.Option{
				engine.WithLogger(log),
				engine.WithLogbook(book),
				engine.WithGraphLimits(graph.Limits{
					MaxNodes: cfg.Project.Graph.MaxNodes,
					MaxEdges: cfg.Project.Graph.MaxEdges,
				}),
			}

			ctx := cmd.Context()
			bridge, bridgeOpt, err := startBridge(ctx, cfg, log)
			if err != nil {
				return err
			}
			if bridge != nil {
				defer bridge.Shutdown(context.Background())
				opts = append(opts, bridgeOpt)
			}

			var report engine.WorkflowReport
			var runErr error
			if useTUI {
				report, runErr = tui.Run(ctx, reg, def, ec, opts...)
			} else {
				ctrl, err := engine.New(reg, opts...)
				if err != nil {
					return err
				}
				report, runErr = ctrl.RunAll(ctx, def, ec)
			}
			if report.RunID != "" {
				if err := engine.NewRunStore(cfg.RunsDir()).Save(report); err != nil {
					log.Warnf("run report not persisted: %v", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			printReport(cmd, report)
			if !report.Clean() {
				return fmt.Errorf("run %s finished with failures", report.RunID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show live run progress in a terminal UI")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "seed a context value, key=value (repeatable)")
	return cmd
}

// startBridge starts the HTTP event bridge when the project enables it and
// returns a controller option that routes lifecycle events through it. The
// server is the controller's sink so local events land in the same queryable
// history as remote posts; the router fans them out to subscribers.
func startBridge(ctx context.Context, cfg *config.Config, log *logging.Logger) (*eventbridge.Server, engine.Option, error) {
	settings := eventbridge.SettingsFromConfig(cfg)
	if !settings.Enabled {
		return nil, nil, nil
	}
	router := eventbridge.NewRouter(eventbridge.RouterWithLogger(log))
	server := eventbridge.NewServer(settings,
		eventbridge.WithProcessor(router),
		eventbridge.WithLogger(log),
	)
	if err := server.Start(ctx); err != nil {
		return nil, nil, err
	}
	log.Printf("event bridge ready at %s", server.BaseURL())
	return server, engine.WithEvents(server), nil
}

func contextFromFlags(sets []string) (*module.Context, error) {
	ec := module.NewContext()
	for _, raw := range sets {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", raw)
		}
		ec.Set(strings.TrimSpace(key), value)
	}
	return ec, nil
}

func printReport(cmd *cobra.Command, report engine.WorkflowReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s workflow=%s\n", report.RunID, report.WorkflowID)
	for _, phase := range report.Phases {
		fmt.Fprintf(out, "  phase %s: completed=%d failed=%d missing=%d\n",
			phase.PhaseID, phase.Completed, phase.Failed, phase.Missing)
		for _, repair := range phase.Repairs {
			fmt.Fprintf(out, "    repaired %s -> %s (%s)\n", repair.ModuleID, repair.DependencyID, repair.Reason)
		}
		for _, record := range phase.Records {
			if record.State == engine.StateCompleted {
				continue
			}
			detail := record.Error
			if detail == "" {
				detail = string(record.State)
			}
			fmt.Fprintf(out, "    %s: %s\n", record.ModuleID, detail)
		}
	}
}
