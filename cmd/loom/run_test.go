package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/loom/internal/workflow/engine"
)

const pipelineYAML = `id: pipeline
phases:
  - id: draft
    modules:
      - id: seed
      - id: outline
        depends_on: [seed]
      - id: consolidate
        depends_on: [outline]
  - id: review
    modules:
      - id: review
`

func writeWorkflow(t *testing.T, projectDir, name, content string) {
	t.Helper()
	dir := filepath.Join(projectDir, "workflows")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create workflows dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "pipeline.yaml", pipelineYAML)

	out, err := execute(t, "run", "pipeline", "--project", projectDir, "--set", "topic=graphs")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "workflow=pipeline") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	store := engine.NewRunStore(filepath.Join(projectDir, ".loom", "runs"))
	ids, err := store.List()
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one persisted run, got %v", ids)
	}
	report, err := store.Load(ids[0])
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean run: %+v", report)
	}
	if _, ok := report.Context["draft"]; !ok {
		t.Fatalf("expected draft in final context: %v", report.Context)
	}
}

func TestRunCommandMissingModuleStillPersists(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "partial.yaml", `id: partial
phases:
  - id: only
    modules:
      - id: seed
      - id: nonexistent
`)

	out, err := execute(t, "run", "partial", "--project", projectDir, "--set", "topic=x")
	if err == nil {
		t.Fatalf("expected dirty-run error, got:\n%s", out)
	}
	if !strings.Contains(out, "nonexistent") {
		t.Fatalf("missing module not reported:\n%s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "pipeline.yaml", pipelineYAML)

	out, err := execute(t, "validate", "pipeline", "--project", projectDir)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK:") || !strings.Contains(out, "metrics:") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestValidateCommandReportsViolations(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "cyclic.yaml", `id: cyclic
phases:
  - id: loop
    modules:
      - id: a
        depends_on: [b]
      - id: b
        depends_on: [a]
`)

	out, err := execute(t, "validate", "cyclic", "--project", projectDir)
	if err == nil {
		t.Fatalf("expected validation failure:\n%s", out)
	}
	if !strings.Contains(out, "Invalid:") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRefineCommand(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "pipeline.yaml", pipelineYAML)

	out, err := execute(t, "refine", "pipeline", "--project", projectDir,
		"--set", "topic=graphs", "--target", "0.99")
	if err != nil {
		t.Fatalf("refine: %v\n%s", err, out)
	}
	if !strings.Contains(out, "refinement") || !strings.Contains(out, "stopped:") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRefineCommandCheckpointWarns(t *testing.T) {
	projectDir := t.TempDir()
	writeWorkflow(t, projectDir, "pipeline.yaml", pipelineYAML)
	loomDir := filepath.Join(projectDir, ".loom")
	if err := os.MkdirAll(loomDir, 0o755); err != nil {
		t.Fatalf("create .loom: %v", err)
	}
	// A low ratio makes the first refinement call cross the checkpoint line.
	cfgYAML := "version: 1\nrefinement:\n  checkpoint_ratio: 0.1\n"
	if err := os.WriteFile(filepath.Join(loomDir, "config.yaml"), []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "refine", "pipeline", "--project", projectDir,
		"--set", "topic=graphs", "--target", "0.99")
	if err != nil {
		t.Fatalf("refine: %v\n%s", err, out)
	}
	if !strings.Contains(out, "refinement checkpoint") {
		t.Fatalf("checkpoint warning not surfaced:\n%s", out)
	}
	journal, err := os.ReadFile(filepath.Join(loomDir, "logs", "journal.log"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if !strings.Contains(string(journal), "refinement checkpoint") {
		t.Fatalf("checkpoint not journaled:\n%s", journal)
	}
}

func TestRunsCommandEmpty(t *testing.T) {
	projectDir := t.TempDir()
	out, err := execute(t, "runs", "--project", projectDir)
	if err != nil {
		t.Fatalf("runs: %v\n%s", err, out)
	}
	if !strings.Contains(out, "no runs recorded") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
