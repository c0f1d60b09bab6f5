package plugins

import (
	"fmt"
	"path/filepath"

	"github.com/kingrea/loom/internal/config"
	"github.com/kingrea/loom/internal/module"
)

// RegisterAll discovers YAML and Go module definitions under .loom/modules
// and registers them. Plugin ids must be unique across both formats; builtin
// modules may be shadowed deliberately since the registry is last-wins.
func RegisterAll(reg *module.Registry, cfg *config.Config) error {
	if reg == nil || cfg == nil {
		return nil
	}
	dir := filepath.Join(cfg.LoomProjectDir, "modules")

	seen := make(map[string]string)

	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return err
	}
	for _, file := range yamlDefs {
		def := file.Definition
		if existing, ok := seen[def.ID]; ok {
			return fmt.Errorf("plugin: duplicate module id %s (%s and %s)", def.ID, existing, file.Path)
		}
		seen[def.ID] = file.Path
		runner, err := newTemplateModule(def)
		if err != nil {
			return err
		}
		entry := module.Entry{
			ID:          def.ID,
			Runner:      runner,
			Inputs:      def.InputKeys(),
			Outputs:     def.OutputKeys(),
			Description: def.Description,
			Metadata: map[string]any{
				"source":  file.Path,
				"version": def.Version,
			},
		}
		if err := reg.Register(entry); err != nil {
			return fmt.Errorf("plugin: register %s from %s: %w", def.ID, file.Path, err)
		}
	}

	goRunners, err := LoadGoRunnerDir(dir)
	if err != nil {
		return err
	}
	for _, file := range goRunners {
		if existing, ok := seen[file.ID]; ok {
			return fmt.Errorf("plugin: duplicate module id %s (%s and %s)", file.ID, existing, file.Path)
		}
		seen[file.ID] = file.Path
		entry := module.Entry{
			ID:     file.ID,
			Runner: file.Runner,
			Metadata: map[string]any{
				"source": file.Path,
			},
		}
		if err := reg.Register(entry); err != nil {
			return fmt.Errorf("plugin: register %s from %s: %w", file.ID, file.Path, err)
		}
	}
	return nil
}
