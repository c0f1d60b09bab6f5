// Package plugins loads user-provided module implementations from the
// project's .loom/modules directory. Two formats are supported: YAML
// definitions that render a text template into the context, and Go files
// interpreted at startup that contribute runner functions directly.
package plugins

import (
	"fmt"
	"strings"
)

// ModuleDefinition describes a template-driven plugin module loaded from YAML.
//
// The struct mirrors the on-disk schema under .loom/modules/*.yaml and is
// intentionally narrow so definitions can be validated before they are wired
// into the registry.
type ModuleDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string           `json:"version" yaml:"version"`
	Template    string           `json:"template" yaml:"template"`
	Inputs      []ContextBinding `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []ContextBinding `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Config      map[string]any   `json:"config,omitempty" yaml:"config,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def ModuleDefinition) Normalized() ModuleDefinition {
	clone := ModuleDefinition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Version:     strings.TrimSpace(def.Version),
		Template:    strings.TrimSpace(def.Template),
	}
	if len(def.Inputs) > 0 {
		clone.Inputs = make([]ContextBinding, len(def.Inputs))
		for i, binding := range def.Inputs {
			clone.Inputs[i] = binding.normalized()
		}
	}
	if len(def.Outputs) > 0 {
		clone.Outputs = make([]ContextBinding, len(def.Outputs))
		for i, binding := range def.Outputs {
			clone.Outputs[i] = binding.normalized()
		}
	}
	if len(def.Config) > 0 {
		clone.Config = make(map[string]any, len(def.Config))
		for key, value := range def.Config {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Config[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the plugin definition is well-formed.
func (def ModuleDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if normalized.Version == "" {
		return fmt.Errorf("plugin %s: version is required", normalized.ID)
	}
	if normalized.Template == "" {
		return fmt.Errorf("plugin %s: template is required", normalized.ID)
	}
	if err := validateBindings("inputs", normalized.Inputs); err != nil {
		return fmt.Errorf("plugin %s: %w", normalized.ID, err)
	}
	if err := validateBindings("outputs", normalized.Outputs); err != nil {
		return fmt.Errorf("plugin %s: %w", normalized.ID, err)
	}
	if len(normalized.Outputs) == 0 {
		return fmt.Errorf("plugin %s: at least one output is required", normalized.ID)
	}
	return nil
}

// InputKeys returns the declared input context keys.
func (def ModuleDefinition) InputKeys() []string {
	return bindingKeys(def.Inputs)
}

// OutputKeys returns the declared output context keys.
func (def ModuleDefinition) OutputKeys() []string {
	return bindingKeys(def.Outputs)
}

// ContextBinding references a context key and whether it is optional. An
// optional input may be absent at run time; an optional output may render
// empty without failing the module.
type ContextBinding struct {
	Key      string `json:"key" yaml:"key"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

func (binding ContextBinding) normalized() ContextBinding {
	return ContextBinding{
		Key:      strings.TrimSpace(binding.Key),
		Optional: binding.Optional,
	}
}

// Validate ensures the binding names a context key.
func (binding ContextBinding) Validate() error {
	if binding.normalized().Key == "" {
		return fmt.Errorf("context key is required")
	}
	return nil
}

func validateBindings(label string, bindings []ContextBinding) error {
	if len(bindings) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(bindings))
	for idx, binding := range bindings {
		if err := binding.Validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", label, idx, err)
		}
		key := binding.normalized().Key
		if _, exists := seen[key]; exists {
			return fmt.Errorf("%s[%d]: duplicate key %s", label, idx, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func bindingKeys(bindings []ContextBinding) []string {
	if len(bindings) == 0 {
		return nil
	}
	keys := make([]string, len(bindings))
	for i, binding := range bindings {
		keys[i] = binding.Key
	}
	return keys
}
