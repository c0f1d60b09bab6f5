package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitDirCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	if err := InitDir(dir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	for _, sub := range []string{"", "logs", "runs"} {
		path := filepath.Join(dir, LoomDir, sub)
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, LoomDir, "config.yaml")); err != nil {
		t.Fatalf("expected default config.yaml: %v", err)
	}
}

func TestInitDirKeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	loomDir := filepath.Join(dir, LoomDir)
	if err := os.MkdirAll(loomDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	custom := []byte("version: 1\nrefinement:\n  max_depth: 7\n")
	path := filepath.Join(loomDir, "config.yaml")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := InitDir(dir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(custom) {
		t.Fatalf("init dir overwrote existing config")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.Refinement.MaxDepth != 3 {
		t.Fatalf("expected default max_depth 3, got %d", cfg.Project.Refinement.MaxDepth)
	}
	if cfg.Project.Graph.MaxNodes != 512 {
		t.Fatalf("expected default max_nodes 512, got %d", cfg.Project.Graph.MaxNodes)
	}
}

func TestLoadMergesPartialConfig(t *testing.T) {
	dir := t.TempDir()
	loomDir := filepath.Join(dir, LoomDir)
	if err := os.MkdirAll(loomDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	partial := "version: 1\nrefinement:\n  max_depth: 5\n  cost_budget: 42.5\n"
	if err := os.WriteFile(filepath.Join(loomDir, "config.yaml"), []byte(partial), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.Refinement.MaxDepth != 5 {
		t.Fatalf("expected max_depth 5, got %d", cfg.Project.Refinement.MaxDepth)
	}
	if cfg.Project.Refinement.CostBudget != 42.5 {
		t.Fatalf("expected cost_budget 42.5, got %v", cfg.Project.Refinement.CostBudget)
	}
	if cfg.Project.Refinement.MaxChildren != 8 {
		t.Fatalf("expected default max_children 8, got %d", cfg.Project.Refinement.MaxChildren)
	}
	if cfg.Project.Workflows.Default != "default" {
		t.Fatalf("expected default workflow, got %s", cfg.Project.Workflows.Default)
	}
}

func TestLoadMergesBridgeConfig(t *testing.T) {
	dir := t.TempDir()
	loomDir := filepath.Join(dir, LoomDir)
	if err := os.MkdirAll(loomDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	raw := "version: 1\nbridge:\n  enabled: true\n  port: 9001\n"
	if err := os.WriteFile(filepath.Join(loomDir, "config.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.Bridge.Enabled == nil || !*cfg.Project.Bridge.Enabled {
		t.Fatalf("expected bridge enabled, got %+v", cfg.Project.Bridge)
	}
	if cfg.Project.Bridge.Port != 9001 {
		t.Fatalf("expected bridge port 9001, got %d", cfg.Project.Bridge.Port)
	}
	if cfg.Project.Bridge.Host != "" {
		t.Fatalf("expected unset host to stay empty, got %q", cfg.Project.Bridge.Host)
	}
}
