// Package graph models one phase's modules as a dependency graph: it detects
// cycles, heuristically repairs dangling and circular references, and
// produces a deterministic execution order for the phase controller.
package graph
