package engine

import (
	"time"

	"github.com/kingrea/loom/internal/workflow/graph"
)

// ModuleState classifies how a single module execution ended.
type ModuleState string

const (
	// StateCompleted means the module ran and its updates were merged.
	StateCompleted ModuleState = "completed"
	// StateFailed means the module ran and returned an error; the phase
	// continued without its updates.
	StateFailed ModuleState = "failed"
	// StateMissing means no implementation was registered for the module id.
	StateMissing ModuleState = "missing"
)

// ModuleRecord is one line of the per-phase ledger.
type ModuleRecord struct {
	ModuleID   string      `json:"module_id"`
	State      ModuleState `json:"state"`
	Error      string      `json:"error,omitempty"`
	Optional   bool        `json:"optional,omitempty"`
	MergedKeys []string    `json:"merged_keys,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// PhaseReport summarizes one phase run: the resolved execution order, any
// graph repairs that were applied, and the outcome of every module.
type PhaseReport struct {
	RunID      string          `json:"run_id"`
	WorkflowID string          `json:"workflow_id"`
	PhaseID    string          `json:"phase_id"`
	Order      []string        `json:"order"`
	Repairs    []graph.Removal `json:"repairs,omitempty"`
	Records    []ModuleRecord  `json:"records"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Missing    int             `json:"missing"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Clean reports whether every module in the phase completed.
func (r PhaseReport) Clean() bool {
	return r.Failed == 0 && r.Missing == 0
}

// Record returns the ledger entry for a module id, if one exists.
func (r PhaseReport) Record(moduleID string) (ModuleRecord, bool) {
	for _, rec := range r.Records {
		if rec.ModuleID == moduleID {
			return rec, true
		}
	}
	return ModuleRecord{}, false
}

// WorkflowReport aggregates the phase reports of a full workflow run plus the
// final merged context.
type WorkflowReport struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	Phases     []PhaseReport  `json:"phases"`
	Context    map[string]any `json:"context"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Clean reports whether every phase ran without failures or missing modules.
func (r WorkflowReport) Clean() bool {
	for _, phase := range r.Phases {
		if !phase.Clean() {
			return false
		}
	}
	return true
}
