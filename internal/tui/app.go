// internal/tui/app.go
//
// This is the run-progress TUI for Loom. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen
//
// The workflow itself runs in a background goroutine; the phase controller's
// lifecycle events stream into the model through a channel so the ledger
// updates live.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/loom/internal/eventbridge"
	"github.com/kingrea/loom/internal/module"
	"github.com/kingrea/loom/internal/workflow"
	"github.com/kingrea/loom/internal/workflow/engine"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	phaseHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC"))
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleMissing = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	footerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type moduleRow struct {
	phaseID  string
	moduleID string
	status   string
	detail   string
}

type runEventMsg eventbridge.Event

type runFinishedMsg struct {
	report engine.WorkflowReport
	err    error
}

// App is the main application model. It holds the full run ledger plus the
// channels feeding it.
type App struct {
	definition workflow.Definition
	rows       []moduleRow
	rowIndex   map[string]int

	events <-chan eventbridge.Event
	start  func() tea.Msg

	report   engine.WorkflowReport
	finished bool
	runErr   error
	started  bool
	status   string
	spin     spinner.Model

	width  int
	height int
}

// NewApp prepares a TUI over a workflow run. The controller must have been
// built with WithEvents(sink) where sink feeds the returned channel; start
// kicks off the run and returns its final report.
func NewApp(def workflow.Definition, events <-chan eventbridge.Event, start func() (engine.WorkflowReport, error)) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyleRunning
	app := &App{
		definition: def,
		rowIndex:   map[string]int{},
		events:     events,
		status:     "starting",
		spin:       sp,
	}
	app.start = func() tea.Msg {
		report, err := start()
		return runFinishedMsg{report: report, err: err}
	}
	for _, phase := range def.Phases {
		for _, ref := range phase.Modules {
			if ref.ID == "" {
				continue
			}
			app.rowIndex[phase.ID+"/"+ref.ID] = len(app.rows)
			app.rows = append(app.rows, moduleRow{
				phaseID:  phase.ID,
				moduleID: ref.ID,
				status:   "pending",
			})
		}
	}
	return app
}

// ChannelSink returns an event processor that forwards lifecycle events into
// a channel the TUI can drain.
func ChannelSink(buffer int) (eventbridge.EventProcessor, <-chan eventbridge.Event) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan eventbridge.Event, buffer)
	sink := eventbridge.EventProcessorFunc(func(evt eventbridge.Event) error {
		select {
		case ch <- evt:
		default:
		}
		return nil
	})
	return sink, ch
}

// Init starts the workflow run and begins draining events.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.start, a.waitForEvent(), a.spin.Tick)
}

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-a.events
		if !ok {
			return nil
		}
		return runEventMsg(evt)
	}
}

// Update reacts to lifecycle events, the final report, and key presses.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		return a, nil
	case tea.KeyMsg:
		switch m.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		}
		return a, nil
	case runEventMsg:
		a.applyEvent(eventbridge.Event(m))
		return a, a.waitForEvent()
	case spinner.TickMsg:
		if a.finished {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(m)
		return a, cmd
	case runFinishedMsg:
		a.finished = true
		a.report = m.report
		a.runErr = m.err
		if m.err != nil {
			a.status = fmt.Sprintf("run failed: %v", m.err)
		} else if m.report.Clean() {
			a.status = "run complete"
		} else {
			a.status = "run complete with problems"
		}
		return a, nil
	}
	return a, nil
}

func (a *App) applyEvent(evt eventbridge.Event) {
	switch evt.Type {
	case eventbridge.TypePhaseStarted:
		a.started = true
		a.status = "running phase " + evt.PhaseID
	case eventbridge.TypePhaseCompleted:
		a.status = "phase " + evt.PhaseID + " done"
	case eventbridge.TypeModuleStarted:
		a.setRow(evt, "running", "")
	case eventbridge.TypeModuleCompleted:
		a.setRow(evt, "completed", "")
	case eventbridge.TypeModuleError:
		a.setRow(evt, "failed", evt.Detail)
	case eventbridge.TypeModuleMissing:
		a.setRow(evt, "missing", evt.Detail)
	}
}

func (a *App) setRow(evt eventbridge.Event, status, detail string) {
	idx, ok := a.rowIndex[evt.PhaseID+"/"+evt.ModuleID]
	if !ok {
		return
	}
	a.rows[idx].status = status
	a.rows[idx].detail = detail
}

// View renders the ledger grouped by phase.
func (a *App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("loom: "+a.definition.ID) + "\n")
	if a.finished {
		b.WriteString(detailTextStyle.Render(a.status) + "\n\n")
	} else {
		b.WriteString(a.spin.View() + " " + detailTextStyle.Render(a.status) + "\n\n")
	}

	currentPhase := ""
	for _, row := range a.rows {
		if row.phaseID != currentPhase {
			currentPhase = row.phaseID
			b.WriteString(phaseHeaderStyle.Render("phase "+currentPhase) + "\n")
		}
		b.WriteString("  " + a.renderRow(row) + "\n")
	}

	if a.finished && a.runErr == nil {
		b.WriteString("\n" + detailTextStyle.Render(fmt.Sprintf("run %s", a.report.RunID)) + "\n")
	}
	b.WriteString("\n" + footerStyle.Render("q: quit") + "\n")
	return b.String()
}

func (a *App) renderRow(row moduleRow) string {
	var label string
	switch row.status {
	case "completed":
		label = labelStyleDone.Render("done   ")
	case "failed":
		label = labelStyleFailed.Render("failed ")
	case "running":
		label = labelStyleRunning.Render("running")
	case "missing":
		label = labelStyleMissing.Render("missing")
	default:
		label = labelStylePending.Render("pending")
	}
	line := label + " " + row.moduleID
	if row.detail != "" {
		line += " " + detailTextStyle.Render(row.detail)
	}
	return line
}

// Run executes a workflow under the TUI. It builds a controller with a
// channel sink appended to the given options, starts the program, and returns
// the final report.
func Run(ctx context.Context, reg *module.Registry, def workflow.Definition, ec *module.Context, opts ...engine.Option) (engine.WorkflowReport, error) {
	sink, events := ChannelSink(256)
	ctrl, err := engine.New(reg, append(opts, engine.WithEvents(sink))...)
	if err != nil {
		return engine.WorkflowReport{}, err
	}
	var report engine.WorkflowReport
	var runErr error
	app := NewApp(def, events, func() (engine.WorkflowReport, error) {
		report, runErr = ctrl.RunAll(ctx, def, ec)
		return report, runErr
	})
	program := tea.NewProgram(app)
	if _, err := program.Run(); err != nil {
		return report, err
	}
	return report, runErr
}
