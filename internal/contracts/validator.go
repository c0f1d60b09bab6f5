// Package contracts checks workflow documents against the expectations the
// engine holds at runtime. The engine itself repairs what it can and keeps
// going; this package is the strict pre-flight that tells an author
// everything the repair pass would silently paper over.
package contracts

import (
	"fmt"

	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/workflow"
	"github.com/kingrea/loom/internal/workflow/graph"
)

// ValidateDefinition collects every contract violation in the document. It
// never stops at the first problem.
func ValidateDefinition(def workflow.Definition) []error {
	var errs []error
	if def.ID == "" {
		errs = append(errs, fmt.Errorf("workflow id is required"))
	}
	if len(def.Phases) == 0 {
		errs = append(errs, fmt.Errorf("workflow declares no phases"))
	}

	seenPhases := map[string]struct{}{}
	for pi, phase := range def.Phases {
		if phase.ID == "" {
			errs = append(errs, fmt.Errorf("phases[%d].id is required", pi))
		} else {
			if _, exists := seenPhases[phase.ID]; exists {
				errs = append(errs, fmt.Errorf("phases[%d].id duplicates %q", pi, phase.ID))
			}
			seenPhases[phase.ID] = struct{}{}
		}
		if len(phase.Modules) == 0 {
			errs = append(errs, fmt.Errorf("phase %q declares no modules", phase.ID))
		}
		errs = append(errs, validatePhaseModules(phase)...)
	}
	return errs
}

func validatePhaseModules(phase workflow.Phase) []error {
	var errs []error
	declared := map[string]struct{}{}
	for mi, ref := range phase.Modules {
		if ref.ID == "" {
			errs = append(errs, fmt.Errorf("phase %q modules[%d].id is required", phase.ID, mi))
			continue
		}
		if _, exists := declared[ref.ID]; exists {
			errs = append(errs, fmt.Errorf("phase %q module %q declared twice", phase.ID, ref.ID))
		}
		declared[ref.ID] = struct{}{}
	}
	for _, ref := range phase.Modules {
		if ref.ID == "" {
			continue
		}
		seenDeps := map[string]struct{}{}
		for _, dep := range ref.DependsOn {
			if dep == ref.ID {
				errs = append(errs, fmt.Errorf("phase %q module %q depends on itself", phase.ID, ref.ID))
			}
			if _, exists := seenDeps[dep]; exists {
				errs = append(errs, fmt.Errorf("phase %q module %q lists dependency %q twice", phase.ID, ref.ID, dep))
			}
			seenDeps[dep] = struct{}{}
			if _, known := declared[dep]; !known {
				errs = append(errs, fmt.Errorf("phase %q module %q depends on undeclared module %q", phase.ID, ref.ID, dep))
			}
		}
	}
	if g, err := graph.New(phase.Modules, graph.Limits{}); err == nil {
		if g.PruneMissingDependencies(); g.DetectCycle() {
			errs = append(errs, fmt.Errorf("phase %q contains a dependency cycle", phase.ID))
		}
	}
	return errs
}

// ValidateCoverage reports every module the document references that has no
// registered implementation. These modules would be skipped at runtime.
func ValidateCoverage(def workflow.Definition, reg *module.Registry) []error {
	if reg == nil {
		return []error{fmt.Errorf("module registry is nil")}
	}
	var errs []error
	for _, phase := range def.Phases {
		for _, ref := range phase.Modules {
			if ref.ID == "" {
				continue
			}
			if _, ok := reg.Get(ref.ID); !ok {
				errs = append(errs, fmt.Errorf("phase %q module %q has no registered implementation", phase.ID, ref.ID))
			}
		}
	}
	return errs
}
