package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported event version.
	EventSchemaVersion = 1
)

// Lifecycle event types emitted by the phase controller and refinement loop.
const (
	TypePhaseStarted    = "phase_started"
	TypePhaseCompleted  = "phase_completed"
	TypeModuleStarted   = "module_started"
	TypeModuleCompleted = "module_completed"
	TypeModuleError     = "module_error"
	TypeModuleMissing   = "missing_implementation"
	TypeRefinementCall  = "refinement_call"
	TypeRefinementDeny  = "refinement_denied"
)

// Event captures a single run notification. Local emitters (the phase
// controller, the refinement loop) construct events directly; remote runners
// can also post them over the HTTP bridge.
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Sequence   int64           `json:"sequence"`
	Type       string          `json:"type"`
	EmittedAt  time.Time       `json:"emitted_at"`
	ServerTime time.Time       `json:"server_time"`
	RunID      string          `json:"run_id"`
	Workflow   string          `json:"workflow"`
	PhaseID    string          `json:"phase_id"`
	ModuleID   string          `json:"module_id"`
	Detail     string          `json:"detail,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Normalize applies defaults and canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	e.Type = strings.TrimSpace(e.Type)
	e.RunID = strings.TrimSpace(e.RunID)
	e.Workflow = strings.TrimSpace(e.Workflow)
	e.PhaseID = strings.TrimSpace(e.PhaseID)
	e.ModuleID = strings.TrimSpace(e.ModuleID)
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events. Phase
// level events carry no module id, so only run, workflow, and type are
// mandatory.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if e.Type == "" {
		return errors.New("type is required")
	}
	if e.RunID == "" {
		return errors.New("run_id is required")
	}
	if e.Workflow == "" {
		return errors.New("workflow is required")
	}
	return nil
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) error
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) error

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	EventsSeen    int64  `json:"events_seen"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type eventResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

type eventsQueryResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}
