package contracts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/loom/internal/workflow"
)

// Report captures validation results for a workflow document.
type Report struct {
	Path       string
	WorkflowID string
	Errors     []error
	Metrics    Metrics
}

// ValidateDefinitionFile reads and validates a workflow document. Parsing is
// deliberately lenient here: a document that would fail strict normalization
// still gets a full violation list instead of a single parse error.
func ValidateDefinitionFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contracts: read workflow file: %w", err)
	}
	var def workflow.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("contracts: parse workflow file: %w", err)
	}
	report := &Report{
		Path:       path,
		WorkflowID: def.ID,
		Errors:     ValidateDefinition(def),
		Metrics:    Score(def),
	}
	return report, nil
}

// IsValid reports whether the validation passed.
func (r *Report) IsValid() bool {
	return r != nil && len(r.Errors) == 0
}
