// Package refine drives bounded iterative improvement of a run's context. A
// loop alternates evaluation and revision, asking the recursion manager for
// admission before every revision so refinement can never run away.
package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/loom/internal/eventbridge"
	"github.com/kingrea/loom/internal/logbook"
	"github.com/kingrea/loom/internal/logging"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/recursion"
)

// Evaluator scores the current context. Higher is better; scores are expected
// to live in [0, 1] but the loop only compares them.
type Evaluator interface {
	Evaluate(ctx context.Context, ec *module.Context) (float64, error)
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(ctx context.Context, ec *module.Context) (float64, error)

// Evaluate executes f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, ec *module.Context) (float64, error) {
	return f(ctx, ec)
}

// Reviser proposes updates intended to improve the context.
type Reviser interface {
	Revise(ctx context.Context, ec *module.Context, score float64) (map[string]any, error)
}

// ReviserFunc adapts a function into a Reviser.
type ReviserFunc func(ctx context.Context, ec *module.Context, score float64) (map[string]any, error)

// Revise executes f.
func (f ReviserFunc) Revise(ctx context.Context, ec *module.Context, score float64) (map[string]any, error) {
	return f(ctx, ec, score)
}

// StopReason explains why a refinement run ended.
type StopReason string

const (
	StopTargetReached   StopReason = "target_reached"
	StopAdmissionDenied StopReason = "admission_denied"
	StopNoImprovement   StopReason = "no_improvement"
	StopReviserFailed   StopReason = "reviser_failed"
)

// Iteration records one round of the loop.
type Iteration struct {
	Index    int
	Score    float64
	Accepted bool
	Snapshot recursion.Snapshot
	Note     string
}

// Result summarizes a refinement run.
type Result struct {
	RootID     string
	Iterations []Iteration
	FinalScore float64
	Reason     StopReason
}

// Loop wires an evaluator and a reviser to the recursion manager.
type Loop struct {
	manager   *recursion.Manager
	evaluator Evaluator
	reviser   Reviser
	target    float64
	callCost  float64
	book      *logbook.Logbook
	log       *logging.Logger
	events    eventbridge.EventProcessor
	sequence  int64
}

// Option customizes a loop instance.
type Option func(*Loop)

// WithTarget sets the quality score at which refinement stops. Default 0.9.
func WithTarget(target float64) Option {
	return func(l *Loop) {
		if target > 0 {
			l.target = target
		}
	}
}

// WithCallCost sets the budget cost charged per revision. Default 1.
func WithCallCost(cost float64) Option {
	return func(l *Loop) {
		if cost > 0 {
			l.callCost = cost
		}
	}
}

// WithLogbook attaches a run journal for refinement decisions.
func WithLogbook(book *logbook.Logbook) Option {
	return func(l *Loop) {
		l.book = book
	}
}

// WithLogger attaches a logger for loop diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithEvents attaches a processor that receives refinement lifecycle events.
func WithEvents(events eventbridge.EventProcessor) Option {
	return func(l *Loop) {
		if events != nil {
			l.events = events
		}
	}
}

// New builds a refinement loop. Manager, evaluator, and reviser are all
// required.
func New(manager *recursion.Manager, evaluator Evaluator, reviser Reviser, opts ...Option) (*Loop, error) {
	if manager == nil {
		return nil, fmt.Errorf("refine: recursion manager is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("refine: evaluator is required")
	}
	if reviser == nil {
		return nil, fmt.Errorf("refine: reviser is required")
	}
	l := &Loop{
		manager:   manager,
		evaluator: evaluator,
		reviser:   reviser,
		target:    0.9,
		callCost:  1,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run refines the context until the target score is reached, the recursion
// manager denies further calls, or a revision fails to improve the score.
// Denied admission is a normal outcome, not an error; only evaluator and
// reviser failures surface as errors.
func (l *Loop) Run(ctx context.Context, rootID string, ec *module.Context) (Result, error) {
	if ec == nil {
		return Result{}, fmt.Errorf("refine: execution context is required")
	}
	l.manager.StartRoot(rootID)
	result := Result{RootID: rootID}

	score, err := l.evaluator.Evaluate(ctx, ec)
	if err != nil {
		return result, fmt.Errorf("refine: initial evaluation: %w", err)
	}
	result.FinalScore = score

	for iteration := 1; ; iteration++ {
		if score >= l.target {
			result.Reason = StopTargetReached
			l.log.Printf("refinement done root=%s score=%v target=%v", rootID, score, l.target)
			return result, nil
		}

		snap, err := l.manager.PrepareCall(recursion.Request{
			RootID:               rootID,
			Depth:                iteration,
			Cost:                 l.callCost,
			TerminationCondition: fmt.Sprintf("score >= %v", l.target),
		})
		if err != nil {
			result.Reason = StopAdmissionDenied
			l.book.Refinement(rootID, iteration, false, err.Error())
			l.emit(eventbridge.TypeRefinementDeny, rootID, err.Error())
			l.log.Printf("refinement halted root=%s iteration=%d: %v", rootID, iteration, err)
			return result, nil
		}
		l.emit(eventbridge.TypeRefinementCall, rootID, fmt.Sprintf("iteration %d", iteration))

		updates, err := l.reviser.Revise(ctx, ec, score)
		if err != nil {
			result.Reason = StopReviserFailed
			l.book.Refinement(rootID, iteration, false, err.Error())
			return result, fmt.Errorf("refine: revision %d: %w", iteration, err)
		}

		// Score the revision on a trial copy so a regression never
		// contaminates the accepted context.
		trial := module.NewContextFrom(ec.Snapshot())
		trial.Merge(updates)
		newScore, err := l.evaluator.Evaluate(ctx, trial)
		if err != nil {
			return result, fmt.Errorf("refine: evaluate revision %d: %w", iteration, err)
		}

		entry := Iteration{Index: iteration, Score: newScore, Snapshot: snap}
		if newScore > score {
			ec.Merge(updates)
			score = newScore
			result.FinalScore = score
			entry.Accepted = true
			entry.Note = fmt.Sprintf("score %v", newScore)
			l.book.Refinement(rootID, iteration, true, entry.Note)
			result.Iterations = append(result.Iterations, entry)
			continue
		}

		entry.Note = fmt.Sprintf("no improvement: %v <= %v", newScore, score)
		l.book.Refinement(rootID, iteration, false, entry.Note)
		result.Iterations = append(result.Iterations, entry)
		result.Reason = StopNoImprovement
		return result, nil
	}
}

func (l *Loop) emit(kind, rootID, detail string) {
	if l.events == nil {
		return
	}
	l.sequence++
	event := eventbridge.Event{
		Version:   eventbridge.EventSchemaVersion,
		EventID:   uuid.NewString(),
		Sequence:  l.sequence,
		Type:      kind,
		EmittedAt: time.Now().UTC(),
		RunID:     rootID,
		Detail:    detail,
	}
	if err := l.events.HandleEvent(event); err != nil {
		l.log.Printf("refinement event dropped type=%s root=%s: %v", kind, rootID, err)
	}
}
