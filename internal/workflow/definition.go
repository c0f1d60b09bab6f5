package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Definition declares a workflow document: ordered phases, each containing
// modules with declared dependencies. This is the document the engine
// executes and the refinement loop revises.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Phases      []Phase           `json:"phases" yaml:"phases"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Phase is a named group of modules intended to run together in one ordered
// pass.
type Phase struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Modules []ModuleRef `json:"modules" yaml:"modules"`
}

// ModuleRef declares one module within a phase: its identifier, the modules
// it must follow, and whether dependencies on it may be dropped during cycle
// repair.
type ModuleRef struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Optional    bool           `json:"optional,omitempty" yaml:"optional,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    cloneStringMap(def.Metadata),
	}
	if len(def.Phases) > 0 {
		clone.Phases = make([]Phase, len(def.Phases))
		for i, phase := range def.Phases {
			clone.Phases[i] = phase.Clone()
		}
	}
	return clone
}

// Clone returns a deep copy of the phase.
func (p Phase) Clone() Phase {
	clone := Phase{ID: p.ID, Name: p.Name}
	if len(p.Modules) > 0 {
		clone.Modules = make([]ModuleRef, len(p.Modules))
		for i, ref := range p.Modules {
			clone.Modules[i] = ref.Clone()
		}
	}
	return clone
}

// Clone returns a deep copy of the module reference.
func (ref ModuleRef) Clone() ModuleRef {
	clone := ModuleRef{
		ID:          ref.ID,
		Description: ref.Description,
		Optional:    ref.Optional,
	}
	if len(ref.DependsOn) > 0 {
		clone.DependsOn = make([]string, len(ref.DependsOn))
		copy(clone.DependsOn, ref.DependsOn)
	}
	if len(ref.Config) > 0 {
		clone.Config = make(map[string]any, len(ref.Config))
		for key, value := range ref.Config {
			clone.Config[key] = value
		}
	}
	return clone
}

// Validate ensures the document is structurally usable. Dangling dependency
// references are deliberately not rejected here: the dependency graph repairs
// them and the contracts validator reports them.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("workflow: id is required")
	}
	seenPhases := map[string]struct{}{}
	for idx, phase := range def.Phases {
		if phase.ID == "" {
			return fmt.Errorf("workflow %s phase[%d]: id is required", def.ID, idx)
		}
		if _, exists := seenPhases[phase.ID]; exists {
			return fmt.Errorf("workflow %s: duplicate phase id %s", def.ID, phase.ID)
		}
		seenPhases[phase.ID] = struct{}{}
		if err := phase.validateModules(def.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p Phase) validateModules(workflowID string) error {
	seen := map[string]struct{}{}
	for _, ref := range p.Modules {
		if ref.ID == "" {
			// Malformed refs are skipped by the engine with a warning,
			// never fatal to the document.
			continue
		}
		if _, exists := seen[ref.ID]; exists {
			return fmt.Errorf("workflow %s phase %s: duplicate module id %s", workflowID, p.ID, ref.ID)
		}
		seen[ref.ID] = struct{}{}
		if err := ref.validateDependencies(workflowID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (ref ModuleRef) validateDependencies(workflowID, phaseID string) error {
	deps := append([]string{}, ref.DependsOn...)
	sort.Strings(deps)
	for i := 1; i < len(deps); i++ {
		if deps[i] != "" && deps[i] == deps[i-1] {
			return fmt.Errorf("workflow %s phase %s: module %s has duplicate dependency on %s", workflowID, phaseID, ref.ID, deps[i])
		}
	}
	return nil
}

// Normalized clones the definition, trims identifier whitespace, drops empty
// dependency entries, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	for i := range clone.Phases {
		phase := &clone.Phases[i]
		phase.ID = strings.TrimSpace(phase.ID)
		for j := range phase.Modules {
			ref := &phase.Modules[j]
			ref.ID = strings.TrimSpace(ref.ID)
			ref.DependsOn = dropEmpty(ref.DependsOn)
		}
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// PhaseByID returns the phase with the given id.
func (def Definition) PhaseByID(id string) (Phase, bool) {
	for _, phase := range def.Phases {
		if phase.ID == id {
			return phase, true
		}
	}
	return Phase{}, false
}

// ModuleIDs returns the phase's module identifiers in declaration order,
// skipping malformed refs.
func (p Phase) ModuleIDs() []string {
	ids := make([]string, 0, len(p.Modules))
	for _, ref := range p.Modules {
		if ref.ID == "" {
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids
}

func dropEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := values[:0]
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
