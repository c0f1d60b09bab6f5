package contracts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/workflow"
)

func TestValidateDefinitionFile(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantValid bool
	}{
		{
			name: "valid-pipeline",
			yaml: `id: content-pipeline
phases:
  - id: draft
    modules:
      - id: seed
      - id: outline
        depends_on: [seed]
  - id: review
    modules:
      - id: critique
`,
			wantValid: true,
		},
		{
			name: "dangling-dependency",
			yaml: `id: content-pipeline
phases:
  - id: draft
    modules:
      - id: outline
        depends_on: [never-declared]
`,
			wantValid: false,
		},
		{
			name: "dependency-cycle",
			yaml: `id: content-pipeline
phases:
  - id: draft
    modules:
      - id: a
        depends_on: [b]
      - id: b
        depends_on: [a]
`,
			wantValid: false,
		},
		{
			name: "empty-phase",
			yaml: `id: content-pipeline
phases:
  - id: draft
`,
			wantValid: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "workflow.yaml")
			if err := os.WriteFile(path, []byte(test.yaml), 0644); err != nil {
				t.Fatalf("write temp workflow: %v", err)
			}
			report, err := ValidateDefinitionFile(path)
			if err != nil {
				t.Fatalf("validate workflow file: %v", err)
			}
			if report.IsValid() != test.wantValid {
				t.Fatalf("valid=%v want=%v errors=%v", report.IsValid(), test.wantValid, report.Errors)
			}
		})
	}
}

func TestValidateDefinitionCollectsAllViolations(t *testing.T) {
	def := workflow.Definition{
		Phases: []workflow.Phase{{
			ID: "draft",
			Modules: []workflow.ModuleRef{
				{ID: "outline", DependsOn: []string{"outline", "ghost", "ghost"}},
			},
		}},
	}
	errs := ValidateDefinition(def)
	if len(errs) < 3 {
		t.Fatalf("expected missing id, self-dependency, duplicate and dangling deps, got %v", errs)
	}
	joined := make([]string, len(errs))
	for i, err := range errs {
		joined[i] = err.Error()
	}
	all := strings.Join(joined, "; ")
	for _, fragment := range []string{"workflow id", "depends on itself", "undeclared module"} {
		if !strings.Contains(all, fragment) {
			t.Fatalf("missing %q in violations: %s", fragment, all)
		}
	}
}

func TestValidateCoverage(t *testing.T) {
	reg := module.NewRegistry()
	reg.MustRegister(module.Entry{ID: "seed", Runner: module.RunnerFunc(
		func(ctx context.Context, ec *module.Context) (map[string]any, error) { return nil, nil },
	)})
	def := workflow.Definition{
		ID: "doc",
		Phases: []workflow.Phase{{
			ID:      "draft",
			Modules: []workflow.ModuleRef{{ID: "seed"}, {ID: "ghost"}},
		}},
	}
	errs := ValidateCoverage(def, reg)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "ghost") {
		t.Fatalf("expected one coverage violation for ghost, got %v", errs)
	}
}

func TestScore(t *testing.T) {
	def := workflow.Definition{
		ID: "doc",
		Phases: []workflow.Phase{
			{ID: "draft", Modules: []workflow.ModuleRef{
				{ID: "seed"},
				{ID: "outline", DependsOn: []string{"seed"}},
			}},
			{ID: "review", Modules: []workflow.ModuleRef{
				{ID: "critique", DependsOn: []string{"missing"}},
				{ID: "approve"},
			}},
		},
	}
	metrics := Score(def)
	if metrics.Completeness != 0.5 {
		t.Fatalf("expected completeness 0.5, got %v", metrics.Completeness)
	}
	if metrics.Connectivity != 0.5 {
		t.Fatalf("expected connectivity 0.5, got %v", metrics.Connectivity)
	}
	if metrics.Balance != 1 {
		t.Fatalf("expected perfect balance, got %v", metrics.Balance)
	}
	if overall := metrics.Overall(); overall <= 0.6 || overall >= 0.7 {
		t.Fatalf("unexpected overall score: %v", overall)
	}
}
