package engine

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/loom/internal/eventbridge"
	"github.com/kingrea/loom/internal/logbook"
	"github.com/kingrea/loom/internal/logging"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/workflow"
	"github.com/kingrea/loom/internal/workflow/graph"
)

// Controller executes the modules of a phase strictly one at a time, merging
// each module's updates into the shared context before the next module runs.
// A module failure or a missing implementation never aborts the phase; it is
// recorded in the report and execution continues. Escalation is the caller's
// decision.
type Controller struct {
	registry *module.Registry
	limits   graph.Limits
	log      *logging.Logger
	book     *logbook.Logbook
	events   eventbridge.EventProcessor
	clock    func() time.Time
	sequence atomic.Int64
}

// Option customizes the controller instance.
type Option func(*Controller)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger attaches a logger for execution diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithLogbook attaches a run journal that records per-module outcomes.
func WithLogbook(book *logbook.Logbook) Option {
	return func(c *Controller) {
		c.book = book
	}
}

// WithEvents attaches a processor that receives lifecycle events.
func WithEvents(events eventbridge.EventProcessor) Option {
	return func(c *Controller) {
		if events != nil {
			c.events = events
		}
	}
}

// WithGraphLimits overrides the default dependency graph ceilings.
func WithGraphLimits(limits graph.Limits) Option {
	return func(c *Controller) {
		c.limits = limits
	}
}

// New wires a phase controller to the module registry.
func New(registry *module.Registry, opts ...Option) (*Controller, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: module registry is required")
	}
	c := &Controller{
		registry: registry,
		log:      logging.Nop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunPhase executes a single phase against the shared context and returns the
// per-module ledger. An error is returned only for configuration problems
// (nil context, oversized graph) or caller cancellation; module failures are
// reported, not returned.
func (c *Controller) RunPhase(ctx context.Context, workflowID string, phase workflow.Phase, ec *module.Context) (PhaseReport, error) {
	runID := uuid.NewString()
	return c.runPhase(ctx, runID, workflowID, phase, ec)
}

// RunAll executes every phase of a workflow document in order, threading one
// shared context through the whole run. Phases after a dirty phase still run;
// the report carries the full picture.
func (c *Controller) RunAll(ctx context.Context, def workflow.Definition, ec *module.Context) (WorkflowReport, error) {
	if ec == nil {
		return WorkflowReport{}, fmt.Errorf("engine: execution context is required")
	}
	report := WorkflowReport{
		RunID:      uuid.NewString(),
		WorkflowID: def.ID,
		StartedAt:  c.now(),
	}
	for _, phase := range def.Phases {
		phaseReport, err := c.runPhase(ctx, report.RunID, def.ID, phase, ec)
		if err != nil {
			report.FinishedAt = c.now()
			report.Context = ec.Snapshot()
			return report, err
		}
		report.Phases = append(report.Phases, phaseReport)
	}
	report.FinishedAt = c.now()
	report.Context = ec.Snapshot()
	return report, nil
}

func (c *Controller) runPhase(ctx context.Context, runID, workflowID string, phase workflow.Phase, ec *module.Context) (PhaseReport, error) {
	if ec == nil {
		return PhaseReport{}, fmt.Errorf("engine: execution context is required")
	}
	report := PhaseReport{
		RunID:      runID,
		WorkflowID: workflowID,
		PhaseID:    phase.ID,
		StartedAt:  c.now(),
	}
	g, err := graph.New(phase.Modules, c.limits, graph.WithLogger(c.log))
	if err != nil {
		return PhaseReport{}, fmt.Errorf("engine: phase %s: %w", phase.ID, err)
	}
	report.Order = g.Order()
	report.Repairs = g.Removals()
	refs := map[string]workflow.ModuleRef{}
	for _, ref := range g.Modules() {
		refs[ref.ID] = ref
	}

	c.log.Printf("phase started workflow=%s phase=%s modules=%d run=%s", workflowID, phase.ID, len(report.Order), runID)
	c.book.Append(logbook.LevelInfo, fmt.Sprintf("phase=%s started modules=%d", phase.ID, len(report.Order)))
	c.emit(eventbridge.TypePhaseStarted, runID, workflowID, phase.ID, "", "")

	for _, id := range report.Order {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = c.now()
			return report, fmt.Errorf("engine: phase %s interrupted: %w", phase.ID, err)
		}
		record := c.runModule(ctx, runID, workflowID, phase.ID, id, refs[id], ec)
		report.Records = append(report.Records, record)
		switch record.State {
		case StateCompleted:
			report.Completed++
		case StateFailed:
			report.Failed++
		case StateMissing:
			report.Missing++
		}
	}

	report.FinishedAt = c.now()
	detail := fmt.Sprintf("completed=%d failed=%d missing=%d", report.Completed, report.Failed, report.Missing)
	c.log.Printf("phase done workflow=%s phase=%s %s", workflowID, phase.ID, detail)
	c.book.Append(logbook.LevelInfo, fmt.Sprintf("phase=%s done %s", phase.ID, detail))
	c.emit(eventbridge.TypePhaseCompleted, runID, workflowID, phase.ID, "", detail)
	return report, nil
}

func (c *Controller) runModule(ctx context.Context, runID, workflowID, phaseID, id string, ref workflow.ModuleRef, ec *module.Context) ModuleRecord {
	record := ModuleRecord{
		ModuleID:  id,
		Optional:  ref.Optional,
		StartedAt: c.now(),
	}
	c.emit(eventbridge.TypeModuleStarted, runID, workflowID, phaseID, id, "")

	entry, ok := c.registry.Get(id)
	if !ok {
		record.State = StateMissing
		record.FinishedAt = c.now()
		c.log.Warnf("module skipped: no implementation registered phase=%s module=%s", phaseID, id)
		c.book.ModuleOutcome(phaseID, id, false, "no implementation registered")
		c.emit(eventbridge.TypeModuleMissing, runID, workflowID, phaseID, id, "no implementation registered")
		return record
	}

	updates, err := entry.Runner.Run(ctx, ec)
	record.FinishedAt = c.now()
	if err != nil {
		record.State = StateFailed
		record.Error = err.Error()
		c.log.Errorf("module failed phase=%s module=%s err=%v", phaseID, id, err)
		c.book.ModuleOutcome(phaseID, id, false, err.Error())
		c.emit(eventbridge.TypeModuleError, runID, workflowID, phaseID, id, err.Error())
		return record
	}

	// Merge before the next module runs so downstream modules observe the
	// produced values.
	ec.Merge(updates)
	record.State = StateCompleted
	record.MergedKeys = sortedKeys(updates)
	c.book.ModuleOutcome(phaseID, id, true, "")
	c.emit(eventbridge.TypeModuleCompleted, runID, workflowID, phaseID, id, "")
	return record
}

func (c *Controller) emit(kind, runID, workflowID, phaseID, moduleID, detail string) {
	if c.events == nil {
		return
	}
	event := eventbridge.Event{
		Version:   eventbridge.EventSchemaVersion,
		EventID:   uuid.NewString(),
		Sequence:  c.sequence.Add(1),
		Type:      kind,
		EmittedAt: c.now().UTC(),
		RunID:     runID,
		Workflow:  workflowID,
		PhaseID:   phaseID,
		ModuleID:  moduleID,
		Detail:    detail,
	}
	if err := c.events.HandleEvent(event); err != nil {
		c.log.Warnf("event dropped type=%s module=%s err=%v", kind, moduleID, err)
	}
}

func (c *Controller) now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock()
}

func sortedKeys(values map[string]any) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
