// Package engine executes workflow phases. The controller orders a phase's
// modules through the dependency graph, runs them one at a time against the
// shared execution context, and records per-module outcomes so a phase always
// runs to completion even when individual modules fail or are unregistered.
package engine
