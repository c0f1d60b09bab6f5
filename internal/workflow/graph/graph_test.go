package graph

import (
	"reflect"
	"testing"

	"github.com/kingrea/loom/internal/workflow"
)

func refs(mods ...workflow.ModuleRef) []workflow.ModuleRef {
	return mods
}

func TestOrderRespectsDependencies(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "C", DependsOn: []string{"B", "A"}},
		workflow.ModuleRef{ID: "A"},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	order := g.Order()
	if !reflect.DeepEqual(order, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestOrderStableTieBreakByDeclaration(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "seed"},
		workflow.ModuleRef{ID: "outline"},
		workflow.ModuleRef{ID: "review", DependsOn: []string{"seed", "outline"}},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	first := g.Order()
	want := []string{"seed", "outline", "review"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("expected declaration-order ties %v, got %v", want, first)
	}
	// identical input yields identical output
	g2, _ := New(refs(
		workflow.ModuleRef{ID: "seed"},
		workflow.ModuleRef{ID: "outline"},
		workflow.ModuleRef{ID: "review", DependsOn: []string{"seed", "outline"}},
	), Limits{})
	if second := g2.Order(); !reflect.DeepEqual(first, second) {
		t.Fatalf("order not deterministic: %v vs %v", first, second)
	}
}

func TestPruneMissingDependenciesIsIdempotent(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "outline", DependsOn: []string{"seed", "ghost"}},
		workflow.ModuleRef{ID: "seed"},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	removed := g.PruneMissingDependencies()
	if len(removed) != 1 || removed[0].DependencyID != "ghost" || removed[0].Reason != RemovalMissing {
		t.Fatalf("unexpected removals: %+v", removed)
	}
	if again := g.PruneMissingDependencies(); len(again) != 0 {
		t.Fatalf("expected idempotent prune, got %+v", again)
	}
	mods := g.Modules()
	if !reflect.DeepEqual(mods[0].DependsOn, []string{"seed"}) {
		t.Fatalf("expected repaired deps [seed], got %v", mods[0].DependsOn)
	}
}

func TestGraphOwnsItsCopy(t *testing.T) {
	input := refs(
		workflow.ModuleRef{ID: "outline", DependsOn: []string{"ghost"}},
	)
	g, err := New(input, Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	g.PruneMissingDependencies()
	if !reflect.DeepEqual(input[0].DependsOn, []string{"ghost"}) {
		t.Fatalf("graph mutated caller's module set: %v", input[0].DependsOn)
	}
}

func TestDetectCycle(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "A", DependsOn: []string{"B"}},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	if !g.DetectCycle() {
		t.Fatalf("expected cycle")
	}
	acyclic, _ := New(refs(
		workflow.ModuleRef{ID: "A"},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{})
	if acyclic.DetectCycle() {
		t.Fatalf("expected no cycle")
	}
}

func TestBreakCyclesViaOptionalTargets(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "A", DependsOn: []string{"B"}},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}, Optional: true},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	if !g.BreakCycles() {
		t.Fatalf("expected optional-target pass to break the cycle")
	}
	if g.DetectCycle() {
		t.Fatalf("graph still cyclic after repair")
	}
	removals := g.Removals()
	if len(removals) != 1 || removals[0].Reason != RemovalOptionalTarget {
		t.Fatalf("unexpected removals: %+v", removals)
	}
	if removals[0].ModuleID != "A" || removals[0].DependencyID != "B" {
		t.Fatalf("expected A -> B dropped, got %+v", removals[0])
	}
}

func TestBreakCyclesFallbackWithoutOptionalFlags(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "A", DependsOn: []string{"B"}},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	if !g.DetectCycle() {
		t.Fatalf("expected cycle before repair")
	}
	if !g.BreakCycles() {
		t.Fatalf("expected fallback pass to break the cycle")
	}
	if g.DetectCycle() {
		t.Fatalf("graph still cyclic after fallback repair")
	}
	removals := g.Removals()
	if len(removals) != 1 || removals[0].Reason != RemovalCycleFallback {
		t.Fatalf("unexpected removals: %+v", removals)
	}
	// first module in declaration order loses its trailing dependency
	if removals[0].ModuleID != "A" || removals[0].DependencyID != "B" {
		t.Fatalf("expected A's trailing dep dropped first, got %+v", removals[0])
	}
}

func TestOrderRepairsSelfDependencies(t *testing.T) {
	g, err := New(refs(
		workflow.ModuleRef{ID: "A", DependsOn: []string{"A"}},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"B"}},
	), Limits{})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	order := g.Order()
	// self-edges are removed by the fallback pass one at a time
	if !reflect.DeepEqual(order, []string{"A", "B"}) {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestNewEnforcesLimits(t *testing.T) {
	if _, err := New(refs(
		workflow.ModuleRef{ID: "A"},
		workflow.ModuleRef{ID: "B"},
	), Limits{MaxNodes: 1}); err == nil {
		t.Fatalf("expected node limit error")
	}
	if _, err := New(refs(
		workflow.ModuleRef{ID: "A"},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{MaxEdges: 1}); err != nil {
		t.Fatalf("one edge within limit should pass: %v", err)
	}
	if _, err := New(refs(
		workflow.ModuleRef{ID: "A", DependsOn: []string{"B"}},
		workflow.ModuleRef{ID: "B", DependsOn: []string{"A"}},
	), Limits{MaxEdges: 1}); err == nil {
		t.Fatalf("expected edge limit error")
	}
	if _, err := New(refs(
		workflow.ModuleRef{ID: "A"},
		workflow.ModuleRef{ID: "A"},
	), Limits{}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
