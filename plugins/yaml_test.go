package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `id: summary
version: 1.0.0
description: Summarizes the draft
template: "Summary: {{.Inputs.draft}}"
inputs:
  - key: draft
outputs:
  - key: summary
`

func TestParseDefinitionYAMLPayload(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "summary" || len(def.Outputs) != 1 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if _, err := ParseDefinitionYAML([]byte("  \n")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "summary.yaml"), []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write decoy: %v", err)
	}
	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 1 || defs[0].Definition.ID != "summary" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected no definitions, got %+v", defs)
	}
}
