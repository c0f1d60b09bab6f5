package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/loom/internal/logging"
)

// ErrNotFound is returned by Require when no entry exists for an id.
var ErrNotFound = errors.New("module: not found")

// Registry maintains the binding from module identifiers to runnable
// implementations. Registration is expected to happen once at startup,
// before any phase execution begins.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	log     *logging.Logger
}

// Option customizes a registry instance.
type Option func(*Registry)

// WithLogger attaches a logger for registration events.
func WithLogger(log *logging.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: map[string]Entry{},
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs an entry. Re-registering an id overwrites the previous
// entry: last registration wins.
func (r *Registry) Register(entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.entries[entry.ID]
	if !replaced {
		r.order = append(r.order, entry.ID)
	}
	r.entries[entry.ID] = entry
	r.log.Printf("module registered id=%s phase=%s replaced=%t", entry.ID, entry.PhaseID, replaced)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(entry Entry) {
	if err := r.Register(entry); err != nil {
		panic(err)
	}
}

// Get returns the entry for id, or ok=false when absent.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Require returns the entry for id, failing when absent. Used where an
// implementation is mandatory.
func (r *Registry) Require(id string) (Entry, error) {
	entry, ok := r.Get(id)
	if !ok {
		return Entry{}, fmt.Errorf("module %s: %w", id, ErrNotFound)
	}
	return entry, nil
}

// ListByPhase returns all entries whose PhaseID matches, in registration
// order.
func (r *Registry) ListByPhase(phaseID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, id := range r.order {
		entry := r.entries[id]
		if entry.PhaseID == phaseID {
			out = append(out, entry)
		}
	}
	return out
}

// IDs returns a sorted list of registered module identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
