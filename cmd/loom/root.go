package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/loom/internal/config"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/modules"
	"github.com/kingrea/loom/internal/workflow"
	"github.com/kingrea/loom/plugins"
)

func newRootCommand() *cobra.Command {
	var projectDir string

	root := &cobra.Command{
		Use:           "loom",
		Short:         "Dependency-ordered workflow runner with bounded refinement",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "project directory (defaults to the working directory)")

	root.AddCommand(
		newInitCommand(&projectDir),
		newRunCommand(&projectDir),
		newRefineCommand(&projectDir),
		newValidateCommand(&projectDir),
		newRunsCommand(&projectDir),
	)
	return root
}

// loadProject resolves the project directory, creates .loom when missing, and
// reads the project configuration.
func loadProject(projectDir string) (*config.Config, error) {
	dir := projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	if err := config.InitDir(dir); err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// buildRegistry assembles the module registry: builtins first, then any
// plugins discovered under .loom/modules (plugins may shadow builtins).
func buildRegistry(cfg *config.Config) (*module.Registry, error) {
	reg := module.NewRegistry()
	if err := modules.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	if err := plugins.RegisterAll(reg, cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

// resolveDefinition loads a workflow document by name from the project's
// workflow directory, falling back to the configured default. Names without
// an extension get ".yaml" appended.
func resolveDefinition(cfg *config.Config, name string) (workflow.Definition, error) {
	if name == "" {
		name = cfg.Project.Workflows.Default
	}
	return workflow.LoadDefinitionRelative(cfg.WorkflowDir(), workflowFileName(name))
}

func workflowFileName(name string) string {
	if filepath.Ext(name) == "" {
		return name + ".yaml"
	}
	return name
}

func newInitCommand(projectDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .loom directory and a default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadProject(*projectDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfg.LoomProjectDir)
			return nil
		},
	}
}
