// internal/config/config.go
//
// This package handles configuration and the .loom directory structure.
// Every project that uses Loom gets a .loom/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// LoomDir is the name of the directory we create in each project
	LoomDir = ".loom"

	defaultWorkflowID = "default"
)

const defaultProjectConfigYAML = `# loom project configuration
version: 1

workflows:
  default: default
  # dir: workflows

graph:
  max_nodes: 512
  max_edges: 4096

refinement:
  max_depth: 3
  max_children: 8
  cost_budget: 100.0
  checkpoint_ratio: 0.8

# Optional HTTP observer endpoint for run events.
# bridge:
#   enabled: true
#   host: 127.0.0.1
#   port: 8765
`

// GraphLimits caps the size of a dependency graph. Exceeding a limit is a
// configuration error, not a data error.
type GraphLimits struct {
	MaxNodes int `yaml:"max_nodes"`
	MaxEdges int `yaml:"max_edges"`
}

// RefinementConfig carries the hard ceilings for recursive refinement.
type RefinementConfig struct {
	MaxDepth        int     `yaml:"max_depth"`
	MaxChildren     int     `yaml:"max_children"`
	CostBudget      float64 `yaml:"cost_budget"`
	CheckpointRatio float64 `yaml:"checkpoint_ratio"`
}

// BridgeConfig configures the optional HTTP observer endpoint for run events.
// A nil Enabled means "use the default" (disabled).
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// WorkflowConfig captures workflow preferences.
type WorkflowConfig struct {
	Default string `yaml:"default"`
	Dir     string `yaml:"dir,omitempty"`
}

// ProjectConfig models .loom/config.yaml.
type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Workflows  WorkflowConfig   `yaml:"workflows"`
	Graph      GraphLimits      `yaml:"graph"`
	Refinement RefinementConfig `yaml:"refinement"`
	Bridge     BridgeConfig     `yaml:"bridge,omitempty"`
}

// Config holds the runtime configuration for Loom.
type Config struct {
	// ProjectDir is the directory where the user ran `loom` from
	ProjectDir string

	// LoomProjectDir is ProjectDir/.loom
	LoomProjectDir string

	Project ProjectConfig
}

// DefaultProjectConfig returns the configuration used when config.yaml is
// absent or partially filled in.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:   1,
		Workflows: WorkflowConfig{Default: defaultWorkflowID},
		Graph:     GraphLimits{MaxNodes: 512, MaxEdges: 4096},
		Refinement: RefinementConfig{
			MaxDepth:        3,
			MaxChildren:     8,
			CostBudget:      100.0,
			CheckpointRatio: 0.8,
		},
	}
}

// InitDir creates the .loom directory structure in the given project
// directory and seeds a default config.yaml when none exists.
//
// Structure created:
// .loom/
//   config.yaml
//   logs/
//   runs/
func InitDir(projectDir string) error {
	loomDir := filepath.Join(projectDir, LoomDir)
	for _, dir := range []string{
		loomDir,
		filepath.Join(loomDir, "logs"),
		filepath.Join(loomDir, "runs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	configPath := filepath.Join(loomDir, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: stat %s: %w", configPath, err)
		}
		if err := os.WriteFile(configPath, []byte(defaultProjectConfigYAML), 0o644); err != nil {
			return fmt.Errorf("config: write default config: %w", err)
		}
	}
	return nil
}

// Load reads the project configuration for projectDir, applying defaults for
// any field the file leaves unset.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:     projectDir,
		LoomProjectDir: filepath.Join(projectDir, LoomDir),
		Project:        DefaultProjectConfig(),
	}
	configPath := filepath.Join(cfg.LoomProjectDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}
	var project ProjectConfig
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}
	cfg.Project = mergeProjectConfig(cfg.Project, project)
	return cfg, nil
}

// LogsDir returns the path to .loom/logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.LoomProjectDir, "logs")
}

// RunsDir returns the path to .loom/runs.
func (c *Config) RunsDir() string {
	return filepath.Join(c.LoomProjectDir, "runs")
}

// WorkflowDir returns where workflow documents are discovered. Defaults to
// <project>/workflows when the config leaves it unset.
func (c *Config) WorkflowDir() string {
	if c.Project.Workflows.Dir != "" {
		if filepath.IsAbs(c.Project.Workflows.Dir) {
			return c.Project.Workflows.Dir
		}
		return filepath.Join(c.ProjectDir, c.Project.Workflows.Dir)
	}
	return filepath.Join(c.ProjectDir, "workflows")
}

func mergeProjectConfig(base, loaded ProjectConfig) ProjectConfig {
	if loaded.Version != 0 {
		base.Version = loaded.Version
	}
	if loaded.Workflows.Default != "" {
		base.Workflows.Default = loaded.Workflows.Default
	}
	if loaded.Workflows.Dir != "" {
		base.Workflows.Dir = loaded.Workflows.Dir
	}
	if loaded.Graph.MaxNodes > 0 {
		base.Graph.MaxNodes = loaded.Graph.MaxNodes
	}
	if loaded.Graph.MaxEdges > 0 {
		base.Graph.MaxEdges = loaded.Graph.MaxEdges
	}
	if loaded.Refinement.MaxDepth > 0 {
		base.Refinement.MaxDepth = loaded.Refinement.MaxDepth
	}
	if loaded.Refinement.MaxChildren > 0 {
		base.Refinement.MaxChildren = loaded.Refinement.MaxChildren
	}
	if loaded.Refinement.CostBudget > 0 {
		base.Refinement.CostBudget = loaded.Refinement.CostBudget
	}
	if loaded.Refinement.CheckpointRatio > 0 {
		base.Refinement.CheckpointRatio = loaded.Refinement.CheckpointRatio
	}
	if loaded.Bridge.Enabled != nil {
		base.Bridge.Enabled = loaded.Bridge.Enabled
	}
	if loaded.Bridge.Host != "" {
		base.Bridge.Host = loaded.Bridge.Host
	}
	if loaded.Bridge.Port != 0 {
		base.Bridge.Port = loaded.Bridge.Port
	}
	return base
}
