package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/loom/internal/eventbridge"
	"github.com/kingrea/loom/internal/workflow"
	"github.com/kingrea/loom/internal/workflow/engine"
)

func testDefinition() workflow.Definition {
	return workflow.Definition{
		ID: "content-pipeline",
		Phases: []workflow.Phase{
			{ID: "draft", Modules: []workflow.ModuleRef{
				{ID: "seed"},
				{ID: "outline", DependsOn: []string{"seed"}},
			}},
			{ID: "review", Modules: []workflow.ModuleRef{
				{ID: "critique"},
			}},
		},
	}
}

func newTestApp() *App {
	events := make(chan eventbridge.Event)
	return NewApp(testDefinition(), events, func() (engine.WorkflowReport, error) {
		return engine.WorkflowReport{}, nil
	})
}

func TestViewListsAllModulesAsPending(t *testing.T) {
	app := newTestApp()
	view := app.View()
	for _, want := range []string{"content-pipeline", "phase draft", "phase review", "seed", "outline", "critique"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Count(view, "pending") != 3 {
		t.Fatalf("expected three pending rows:\n%s", view)
	}
}

func TestUpdateAppliesLifecycleEvents(t *testing.T) {
	app := newTestApp()
	events := []eventbridge.Event{
		{Type: eventbridge.TypePhaseStarted, PhaseID: "draft"},
		{Type: eventbridge.TypeModuleStarted, PhaseID: "draft", ModuleID: "seed"},
		{Type: eventbridge.TypeModuleCompleted, PhaseID: "draft", ModuleID: "seed"},
		{Type: eventbridge.TypeModuleStarted, PhaseID: "draft", ModuleID: "outline"},
		{Type: eventbridge.TypeModuleError, PhaseID: "draft", ModuleID: "outline", Detail: "boom"},
		{Type: eventbridge.TypeModuleMissing, PhaseID: "review", ModuleID: "critique"},
	}
	for _, evt := range events {
		app.applyEvent(evt)
	}
	view := app.View()
	for _, want := range []string{"done", "failed", "missing", "boom"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestUpdateFinishedRun(t *testing.T) {
	app := newTestApp()
	model, _ := app.Update(runFinishedMsg{report: engine.WorkflowReport{RunID: "run-1"}})
	app = model.(*App)
	if !app.finished {
		t.Fatalf("expected finished state")
	}
	if !strings.Contains(app.View(), "run-1") {
		t.Fatalf("view does not show the run id:\n%s", app.View())
	}
}

func TestQuitKey(t *testing.T) {
	app := newTestApp()
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if msg := cmd(); msg == nil {
		t.Fatalf("expected quit message")
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink, events := ChannelSink(1)
	if err := sink.HandleEvent(eventbridge.Event{Type: eventbridge.TypeModuleStarted}); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	// a full channel drops instead of blocking the run
	if err := sink.HandleEvent(eventbridge.Event{Type: eventbridge.TypeModuleCompleted}); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	evt := <-events
	if evt.Type != eventbridge.TypeModuleStarted {
		t.Fatalf("unexpected buffered event: %+v", evt)
	}
	select {
	case extra := <-events:
		t.Fatalf("expected dropped event, got %+v", extra)
	default:
	}
}
