package plugins

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/kingrea/loom/internal/module"
)

// templateModule runs a YAML plugin: it gathers the declared inputs from the
// execution context, renders the definition's template, and returns the
// rendered text under the declared output keys.
//
// A definition with a single output renders the whole template into that key.
// Definitions with multiple outputs must declare one named template block per
// output key ({{define "key"}}...{{end}}).
type templateModule struct {
	def  ModuleDefinition
	tmpl *template.Template
}

// TemplateData is what a plugin template executes against.
type TemplateData struct {
	Inputs map[string]any
	Config map[string]any
}

func newTemplateModule(def ModuleDefinition) (module.Runner, error) {
	tmpl, err := template.New(def.ID).Parse(def.Template)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: parse template: %w", def.ID, err)
	}
	return &templateModule{def: def, tmpl: tmpl}, nil
}

func (m *templateModule) Run(ctx context.Context, ec *module.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := TemplateData{Inputs: map[string]any{}, Config: m.def.Config}
	for _, binding := range m.def.Inputs {
		value, ok := ec.Get(binding.Key)
		if !ok {
			if binding.Optional {
				continue
			}
			return nil, fmt.Errorf("plugin %s: required input %q is not in the context", m.def.ID, binding.Key)
		}
		data.Inputs[binding.Key] = value
	}

	updates := map[string]any{}
	for _, out := range m.def.Outputs {
		var buf bytes.Buffer
		switch {
		case m.tmpl.Lookup(out.Key) != nil:
			if err := m.tmpl.ExecuteTemplate(&buf, out.Key, data); err != nil {
				return nil, fmt.Errorf("plugin %s: render %q: %w", m.def.ID, out.Key, err)
			}
		case len(m.def.Outputs) == 1:
			if err := m.tmpl.Execute(&buf, data); err != nil {
				return nil, fmt.Errorf("plugin %s: render: %w", m.def.ID, err)
			}
		default:
			return nil, fmt.Errorf("plugin %s: no template block for output %q", m.def.ID, out.Key)
		}
		rendered := strings.TrimSpace(buf.String())
		if rendered == "" {
			if out.Optional {
				continue
			}
			return nil, fmt.Errorf("plugin %s: output %q rendered empty", m.def.ID, out.Key)
		}
		updates[out.Key] = rendered
	}
	return updates, nil
}
