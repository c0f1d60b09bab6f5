package plugins

import (
	"strings"
	"testing"
)

func TestModuleDefinitionValidate(t *testing.T) {
	def := ModuleDefinition{
		ID:       "summary",
		Name:     "Summary",
		Version:  "1.0.0",
		Template: "Summary of {{.Inputs.draft}}",
		Inputs:   []ContextBinding{{Key: "draft"}},
		Outputs:  []ContextBinding{{Key: "summary"}},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("expected definition to validate, got %v", err)
	}
}

func TestModuleDefinitionValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		def  ModuleDefinition
		msg  string
	}{
		{
			name: "missing id",
			def: ModuleDefinition{
				Version:  "1.0.0",
				Template: "x",
				Outputs:  []ContextBinding{{Key: "summary"}},
			},
			msg: "id is required",
		},
		{
			name: "missing version",
			def: ModuleDefinition{
				ID:       "summary",
				Template: "x",
				Outputs:  []ContextBinding{{Key: "summary"}},
			},
			msg: "version is required",
		},
		{
			name: "missing template",
			def: ModuleDefinition{
				ID:      "summary",
				Version: "1.0.0",
				Outputs: []ContextBinding{{Key: "summary"}},
			},
			msg: "template is required",
		},
		{
			name: "no outputs",
			def: ModuleDefinition{
				ID:       "summary",
				Version:  "1.0.0",
				Template: "x",
			},
			msg: "at least one output",
		},
		{
			name: "duplicate outputs",
			def: ModuleDefinition{
				ID:       "summary",
				Version:  "1.0.0",
				Template: "x",
				Outputs:  []ContextBinding{{Key: "summary"}, {Key: "summary"}},
			},
			msg: "duplicate",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.def.Validate(); err == nil || !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected error containing %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestNormalizedTrimsBindings(t *testing.T) {
	def := ModuleDefinition{
		ID:       " summary ",
		Version:  " 1.0.0 ",
		Template: " {{.Inputs.draft}} ",
		Inputs:   []ContextBinding{{Key: " draft "}},
		Outputs:  []ContextBinding{{Key: " summary ", Optional: true}},
	}
	normalized := def.Normalized()
	if normalized.ID != "summary" || normalized.Inputs[0].Key != "draft" {
		t.Fatalf("expected trimmed fields, got %+v", normalized)
	}
	if !normalized.Outputs[0].Optional {
		t.Fatalf("optional flag lost in normalization")
	}
	if def.ID != " summary " {
		t.Fatalf("normalized mutated its receiver")
	}
}
