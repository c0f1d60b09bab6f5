package graph

import (
	"fmt"

	"github.com/kingrea/loom/internal/logging"
	"github.com/kingrea/loom/internal/workflow"
)

// Default ceilings applied when Limits fields are left at zero.
const (
	DefaultMaxNodes = 512
	DefaultMaxEdges = 4096
)

// Limits caps the size of a graph. Exceeding a limit at construction is a
// configuration error, not a data error.
type Limits struct {
	MaxNodes int
	MaxEdges int
}

func (l Limits) normalized() Limits {
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultMaxNodes
	}
	if l.MaxEdges <= 0 {
		l.MaxEdges = DefaultMaxEdges
	}
	return l
}

// RemovalReason classifies why a dependency edge was dropped during repair.
type RemovalReason string

const (
	RemovalMissing        RemovalReason = "missing-target"
	RemovalOptionalTarget RemovalReason = "optional-target"
	RemovalCycleFallback  RemovalReason = "cycle-fallback"
)

// Removal records one repaired dependency edge.
type Removal struct {
	ModuleID     string
	DependencyID string
	Reason       RemovalReason
}

// Graph models one phase's modules as a dependency graph. It operates on an
// owned copy of the module set: callers keep their original unmodified and
// read the repaired set back via Modules().
type Graph struct {
	modules  []workflow.ModuleRef
	index    map[string]int
	removals []Removal
	log      *logging.Logger
}

// Option customizes a graph instance.
type Option func(*Graph)

// WithLogger attaches a logger for repair and degradation warnings.
func WithLogger(log *logging.Logger) Option {
	return func(g *Graph) {
		if log != nil {
			g.log = log
		}
	}
}

// New builds a graph over the given module set. Malformed refs (missing id)
// are skipped with a warning; duplicate ids and exceeded limits are errors.
func New(modules []workflow.ModuleRef, limits Limits, opts ...Option) (*Graph, error) {
	g := &Graph{
		index: map[string]int{},
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	limits = limits.normalized()
	edges := 0
	for _, ref := range modules {
		if ref.ID == "" {
			g.log.Warnf("graph: skipping module with missing id")
			continue
		}
		if _, exists := g.index[ref.ID]; exists {
			return nil, fmt.Errorf("graph: duplicate module id %s", ref.ID)
		}
		g.index[ref.ID] = len(g.modules)
		g.modules = append(g.modules, ref.Clone())
		edges += len(ref.DependsOn)
	}
	if len(g.modules) > limits.MaxNodes {
		return nil, fmt.Errorf("graph: %d modules exceeds limit of %d nodes", len(g.modules), limits.MaxNodes)
	}
	if edges > limits.MaxEdges {
		return nil, fmt.Errorf("graph: %d dependencies exceeds limit of %d edges", edges, limits.MaxEdges)
	}
	return g, nil
}

// Modules returns the graph's (possibly repaired) module set in declaration
// order.
func (g *Graph) Modules() []workflow.ModuleRef {
	out := make([]workflow.ModuleRef, len(g.modules))
	for i, ref := range g.modules {
		out[i] = ref.Clone()
	}
	return out
}

// Removals returns every dependency edge dropped by repair so far.
func (g *Graph) Removals() []Removal {
	out := make([]Removal, len(g.removals))
	copy(out, g.removals)
	return out
}

// DetectCycle reports whether the current dependency lists contain a cycle.
// It runs Kahn's in-degree reduction; dependencies on unknown ids are ignored
// (they cannot participate in a cycle). No side effects.
func (g *Graph) DetectCycle() bool {
	inDegree, dependents := g.adjacency()
	visited := 0
	queue := make([]string, 0, len(g.modules))
	for _, ref := range g.modules {
		if inDegree[ref.ID] == 0 {
			queue = append(queue, ref.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return visited < len(g.modules)
}

// PruneMissingDependencies drops every declared dependency whose target does
// not exist in the module set. Idempotent; returns what was removed.
func (g *Graph) PruneMissingDependencies() []Removal {
	var removed []Removal
	for i := range g.modules {
		ref := &g.modules[i]
		if len(ref.DependsOn) == 0 {
			continue
		}
		kept := ref.DependsOn[:0]
		for _, dep := range ref.DependsOn {
			if _, ok := g.index[dep]; !ok {
				removal := Removal{ModuleID: ref.ID, DependencyID: dep, Reason: RemovalMissing}
				removed = append(removed, removal)
				g.log.Warnf("graph: module %s depends on unknown module %s, dropping", ref.ID, dep)
				continue
			}
			kept = append(kept, dep)
		}
		if len(kept) == 0 {
			ref.DependsOn = nil
		} else {
			ref.DependsOn = kept
		}
	}
	g.removals = append(g.removals, removed...)
	return removed
}

// BreakCycles attempts to restore acyclicity with a two-pass heuristic,
// deterministic given dependency-list order. Pass one strips dependencies
// whose target module is flagged optional. Pass two falls back to popping the
// last-listed dependency of each module, in declaration order, re-checking
// after each single removal. Returns false when no removal sequence under
// this heuristic resolves the cycle; the graph is then left partially
// modified and still cyclic, and the caller decides whether to proceed
// degraded.
func (g *Graph) BreakCycles() bool {
	if !g.DetectCycle() {
		return true
	}
	optional := map[string]bool{}
	for _, ref := range g.modules {
		if ref.Optional {
			optional[ref.ID] = true
		}
	}
	if len(optional) > 0 {
		for i := range g.modules {
			ref := &g.modules[i]
			if len(ref.DependsOn) == 0 {
				continue
			}
			kept := make([]string, 0, len(ref.DependsOn))
			var dropped []string
			for _, dep := range ref.DependsOn {
				if optional[dep] {
					dropped = append(dropped, dep)
					continue
				}
				kept = append(kept, dep)
			}
			if len(dropped) == 0 {
				continue
			}
			if len(kept) == 0 {
				ref.DependsOn = nil
			} else {
				ref.DependsOn = kept
			}
			for _, dep := range dropped {
				g.removals = append(g.removals, Removal{ModuleID: ref.ID, DependencyID: dep, Reason: RemovalOptionalTarget})
				g.log.Warnf("graph: dropped optional-target dependency %s -> %s to break cycle", ref.ID, dep)
			}
			if !g.DetectCycle() {
				return true
			}
		}
	}
	for {
		removedAny := false
		for i := range g.modules {
			ref := &g.modules[i]
			if len(ref.DependsOn) == 0 {
				continue
			}
			last := ref.DependsOn[len(ref.DependsOn)-1]
			ref.DependsOn = ref.DependsOn[:len(ref.DependsOn)-1]
			if len(ref.DependsOn) == 0 {
				ref.DependsOn = nil
			}
			removedAny = true
			g.removals = append(g.removals, Removal{ModuleID: ref.ID, DependencyID: last, Reason: RemovalCycleFallback})
			g.log.Warnf("graph: dropped trailing dependency %s -> %s to break cycle", ref.ID, last)
			if !g.DetectCycle() {
				return true
			}
		}
		if !removedAny {
			return false
		}
	}
}

// Order computes a safe execution order: prune dangling dependencies, repair
// cycles if needed, then run a zero-in-degree traversal. Ties among
// simultaneously-ready modules are broken by original declaration order, so
// two runs over unchanged input produce identical orders. When a cycle
// survives repair, Order logs a warning and falls back to the original
// declaration order so the phase can still proceed in degraded mode.
func (g *Graph) Order() []string {
	g.PruneMissingDependencies()
	if g.DetectCycle() && !g.BreakCycles() {
		g.log.Warnf("graph: unresolved dependency cycle, falling back to declaration order")
		return g.declarationOrder()
	}
	inDegree, _ := g.adjacency()
	emitted := make(map[string]bool, len(g.modules))
	order := make([]string, 0, len(g.modules))
	for len(order) < len(g.modules) {
		progressed := false
		for _, ref := range g.modules {
			if emitted[ref.ID] || inDegree[ref.ID] != 0 {
				continue
			}
			emitted[ref.ID] = true
			order = append(order, ref.ID)
			for _, dependent := range g.dependentsOf(ref.ID) {
				inDegree[dependent]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Unreachable after successful repair; kept as a guard.
			g.log.Warnf("graph: ordering stalled, falling back to declaration order")
			return g.declarationOrder()
		}
	}
	return order
}

func (g *Graph) declarationOrder() []string {
	order := make([]string, len(g.modules))
	for i, ref := range g.modules {
		order[i] = ref.ID
	}
	return order
}

// adjacency derives the in-degree map and the reverse adjacency map
// (dependency -> dependents) from the current dependency lists. Edges to
// unknown ids are ignored.
func (g *Graph) adjacency() (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(g.modules))
	dependents := make(map[string][]string, len(g.modules))
	for _, ref := range g.modules {
		inDegree[ref.ID] = 0
	}
	for _, ref := range g.modules {
		for _, dep := range ref.DependsOn {
			if _, ok := g.index[dep]; !ok {
				continue
			}
			inDegree[ref.ID]++
			dependents[dep] = append(dependents[dep], ref.ID)
		}
	}
	return inDegree, dependents
}

func (g *Graph) dependentsOf(id string) []string {
	var out []string
	for _, ref := range g.modules {
		for _, dep := range ref.DependsOn {
			if dep == id {
				out = append(out, ref.ID)
				break
			}
		}
	}
	return out
}
