package recursion

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/loom/internal/config"
	"github.com/kingrea/loom/internal/logging"
)

// Admission failures. Callers branch on these with errors.Is to decide how to
// surface a denied refinement call.
var (
	ErrTerminationContract = errors.New("recursion: call declares no termination condition")
	ErrNegativeCost        = errors.New("recursion: negative cost estimate")
	ErrDepthLimit          = errors.New("recursion: depth limit reached")
	ErrChildLimit          = errors.New("recursion: child limit reached")
	ErrBudgetExhausted     = errors.New("recursion: cost budget exhausted")
	ErrCheckpointDenied    = errors.New("recursion: checkpoint denied")
)

// Config carries the hard ceilings for recursive refinement. Every field must
// be set to something sane; a manager never starts with a zero ceiling.
type Config struct {
	MaxDepth        int
	MaxChildren     int
	CostBudget      float64
	CheckpointRatio float64
}

// ConfigFromProject maps the project-level refinement settings onto a manager
// config.
func ConfigFromProject(rc config.RefinementConfig) Config {
	return Config{
		MaxDepth:        rc.MaxDepth,
		MaxChildren:     rc.MaxChildren,
		CostBudget:      rc.CostBudget,
		CheckpointRatio: rc.CheckpointRatio,
	}
}

// Validate fails closed: a config that would permit unbounded recursion is
// rejected outright.
func (c Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("recursion: max depth must be at least 1, got %d", c.MaxDepth)
	}
	if c.MaxChildren < 1 {
		return fmt.Errorf("recursion: max children must be at least 1, got %d", c.MaxChildren)
	}
	if c.CostBudget <= 0 {
		return fmt.Errorf("recursion: cost budget must be positive, got %v", c.CostBudget)
	}
	if c.CheckpointRatio < 0 || c.CheckpointRatio > 1 {
		return fmt.Errorf("recursion: checkpoint ratio must be within [0, 1], got %v", c.CheckpointRatio)
	}
	return nil
}

// Request describes a refinement call a module wants to make.
type Request struct {
	RootID               string
	ParentID             string
	Depth                int
	Cost                 float64
	TerminationCondition string
}

// Snapshot records the admission state at the moment a call was granted. The
// audit log is an append-only series of snapshots per root.
type Snapshot struct {
	ID                   string    `json:"id"`
	RootID               string    `json:"root_id"`
	ParentID             string    `json:"parent_id,omitempty"`
	Depth                int       `json:"depth"`
	ChildrenGenerated    int       `json:"children_generated"`
	CostSpent            float64   `json:"cost_spent"`
	BudgetRemaining      float64   `json:"budget_remaining"`
	TerminationCondition string    `json:"termination_condition"`
	Timestamp            time.Time `json:"timestamp"`
}

// Checkpoint is consulted once a root crosses the checkpoint ratio of its
// depth or budget ceiling. Returning false denies the call.
type Checkpoint func(Snapshot) bool

type rootState struct {
	children  int
	costSpent float64
	audit     []Snapshot
}

// Manager enforces the guardrails on recursive refinement: a termination
// contract on every call, a hard depth ceiling, a per-root child ceiling, a
// cost budget, and an operator checkpoint near exhaustion. A denied call
// consumes nothing — the counters commit only after every bookkeeping gate
// has passed. The checkpoint is the single exception: it runs after the
// commit, so its denial keeps the spent slot and budget on the books.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	roots      map[string]*rootState
	checkpoint Checkpoint
	log        *logging.Logger
	clock      func() time.Time
}

// Option customizes a manager instance.
type Option func(*Manager)

// WithLogger attaches a logger for admission decisions.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock injects a deterministic clock for snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithCheckpoint installs the operator checkpoint callback.
func WithCheckpoint(cp Checkpoint) Option {
	return func(m *Manager) {
		m.checkpoint = cp
	}
}

// New validates the config and returns a manager. Invalid ceilings are a hard
// error; there is no permissive fallback.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:   cfg,
		roots: map[string]*rootState{},
		log:   logging.Nop(),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartRoot resets the counters and audit log for a root. Calling it again
// for the same root starts the accounting over.
func (m *Manager) StartRoot(rootID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[rootID] = &rootState{}
}

// PrepareCall runs the admission gates in a fixed order: termination contract,
// cost sanity, depth, child count, budget, checkpoint. The first failing gate
// decides the returned error, and a call denied by any gate before the
// checkpoint consumes no child slot and no budget. On success the granted
// snapshot is appended to the root's audit log and returned.
func (m *Manager) PrepareCall(req Request) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(req.TerminationCondition) == "" {
		m.log.Warnf("refinement denied root=%s: no termination condition", req.RootID)
		return Snapshot{}, ErrTerminationContract
	}
	if req.Cost < 0 {
		m.log.Warnf("refinement denied root=%s cost=%v: negative cost estimate", req.RootID, req.Cost)
		return Snapshot{}, fmt.Errorf("cost %v: %w", req.Cost, ErrNegativeCost)
	}
	if req.Depth > m.cfg.MaxDepth {
		m.log.Warnf("refinement denied root=%s depth=%d: limit %d", req.RootID, req.Depth, m.cfg.MaxDepth)
		return Snapshot{}, fmt.Errorf("depth %d exceeds %d: %w", req.Depth, m.cfg.MaxDepth, ErrDepthLimit)
	}

	state := m.roots[req.RootID]
	if state == nil {
		state = &rootState{}
		m.roots[req.RootID] = state
	}
	if state.children >= m.cfg.MaxChildren {
		m.log.Warnf("refinement denied root=%s children=%d: limit %d", req.RootID, state.children, m.cfg.MaxChildren)
		return Snapshot{}, fmt.Errorf("children %d at limit %d: %w", state.children, m.cfg.MaxChildren, ErrChildLimit)
	}
	if state.costSpent+req.Cost > m.cfg.CostBudget {
		m.log.Warnf("refinement denied root=%s cost=%v spent=%v: budget %v", req.RootID, req.Cost, state.costSpent, m.cfg.CostBudget)
		return Snapshot{}, fmt.Errorf("cost %v over budget %v: %w", state.costSpent+req.Cost, m.cfg.CostBudget, ErrBudgetExhausted)
	}

	// Every bookkeeping gate has passed; commit the call. Only the checkpoint
	// below can still deny it.
	state.children++
	state.costSpent += req.Cost

	snap := Snapshot{
		ID:                   uuid.NewString(),
		RootID:               req.RootID,
		ParentID:             req.ParentID,
		Depth:                req.Depth,
		ChildrenGenerated:    state.children,
		CostSpent:            state.costSpent,
		BudgetRemaining:      m.cfg.CostBudget - state.costSpent,
		TerminationCondition: req.TerminationCondition,
		Timestamp:            m.clock().UTC(),
	}
	state.audit = append(state.audit, snap)

	if m.nearCeiling(req.Depth, state.costSpent) && m.checkpoint != nil {
		if !m.checkpoint(snap) {
			// Committed counters stay committed: the attempt consumed
			// ceiling even though the call was refused.
			m.log.Warnf("refinement denied root=%s depth=%d: checkpoint refused", req.RootID, req.Depth)
			return Snapshot{}, ErrCheckpointDenied
		}
	}

	m.log.Printf("refinement granted root=%s depth=%d children=%d spent=%v remaining=%v",
		req.RootID, req.Depth, state.children, state.costSpent, snap.BudgetRemaining)
	return snap, nil
}

// AuditLog returns a copy of the granted snapshots for a root, oldest first.
func (m *Manager) AuditLog(rootID string) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.roots[rootID]
	if state == nil || len(state.audit) == 0 {
		return nil
	}
	out := make([]Snapshot, len(state.audit))
	copy(out, state.audit)
	return out
}

// Usage reports the committed counters for a root.
func (m *Manager) Usage(rootID string) (children int, costSpent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.roots[rootID]
	if state == nil {
		return 0, 0
	}
	return state.children, state.costSpent
}

func (m *Manager) nearCeiling(depth int, costSpent float64) bool {
	if float64(depth)/float64(m.cfg.MaxDepth) >= m.cfg.CheckpointRatio {
		return true
	}
	return costSpent/m.cfg.CostBudget >= m.cfg.CheckpointRatio
}
