// Package modules ships the builtin module implementations for the standard
// content pipeline: seed, outline, consolidate, and review. They are small and
// deterministic so a fresh project can run a workflow end to end before any
// plugin is installed.
package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/loom/internal/module"
)

// Builtin module identifiers.
const (
	SeedID        = "seed"
	OutlineID     = "outline"
	ConsolidateID = "consolidate"
	ReviewID      = "review"
)

// RegisterBuiltins installs the builtin catalog into a registry.
func RegisterBuiltins(reg *module.Registry) error {
	entries := []module.Entry{
		{
			ID:          SeedID,
			Runner:      module.RunnerFunc(runSeed),
			Inputs:      []string{"topic"},
			Outputs:     []string{"ideas"},
			Description: "expands the topic into candidate ideas",
		},
		{
			ID:          OutlineID,
			Runner:      module.RunnerFunc(runOutline),
			Inputs:      []string{"ideas"},
			Outputs:     []string{"outline"},
			Description: "arranges ideas into an ordered outline",
		},
		{
			ID:          ConsolidateID,
			Runner:      module.RunnerFunc(runConsolidate),
			Inputs:      []string{"topic", "outline"},
			Outputs:     []string{"draft"},
			Description: "folds the outline into a draft document",
		},
		{
			ID:          ReviewID,
			Runner:      module.RunnerFunc(runReview),
			Inputs:      []string{"draft"},
			Outputs:     []string{"review_notes", "quality"},
			Description: "scores the draft and leaves review notes",
		},
	}
	for _, entry := range entries {
		if err := reg.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

func runSeed(_ context.Context, ec *module.Context) (map[string]any, error) {
	topic := stringValue(ec, "topic")
	if topic == "" {
		return nil, fmt.Errorf("modules: seed requires a topic in the context")
	}
	ideas := []string{
		"why " + topic + " matters",
		topic + " in practice",
		"common pitfalls with " + topic,
	}
	return map[string]any{"ideas": ideas}, nil
}

func runOutline(_ context.Context, ec *module.Context) (map[string]any, error) {
	raw, ok := ec.Get("ideas")
	if !ok {
		return nil, fmt.Errorf("modules: outline requires ideas in the context")
	}
	ideas, ok := raw.([]string)
	if !ok || len(ideas) == 0 {
		return nil, fmt.Errorf("modules: outline received no usable ideas")
	}
	var b strings.Builder
	for i, idea := range ideas {
		fmt.Fprintf(&b, "%d. %s\n", i+1, idea)
	}
	return map[string]any{"outline": b.String()}, nil
}

func runConsolidate(_ context.Context, ec *module.Context) (map[string]any, error) {
	outline := stringValue(ec, "outline")
	if outline == "" {
		return nil, fmt.Errorf("modules: consolidate requires an outline in the context")
	}
	topic := stringValue(ec, "topic")
	if topic == "" {
		topic = "untitled"
	}
	draft := fmt.Sprintf("# %s\n\n%s", topic, outline)
	return map[string]any{"draft": draft}, nil
}

func runReview(_ context.Context, ec *module.Context) (map[string]any, error) {
	draft := stringValue(ec, "draft")
	if draft == "" {
		return nil, fmt.Errorf("modules: review requires a draft in the context")
	}
	sections := strings.Count(draft, "\n")
	quality := float64(sections) / 10
	if quality > 1 {
		quality = 1
	}
	notes := fmt.Sprintf("draft has %d lines", sections)
	return map[string]any{"review_notes": notes, "quality": quality}, nil
}

func stringValue(ec *module.Context, key string) string {
	raw, ok := ec.Get(key)
	if !ok {
		return ""
	}
	value, _ := raw.(string)
	return strings.TrimSpace(value)
}
