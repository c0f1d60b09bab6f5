package eventbridge

import (
	"testing"
	"time"
)

func testEvent(id, runID, moduleID, kind string) Event {
	return Event{
		Version:   EventSchemaVersion,
		EventID:   id,
		Type:      kind,
		RunID:     runID,
		Workflow:  "content-pipeline",
		ModuleID:  moduleID,
		EmittedAt: time.Now().UTC(),
	}
}

func receiveEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case evt := <-sub.Events:
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestRouterDeliversToModuleSubscriber(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("outline")
	defer sub.Close()

	router.Route(testEvent("evt-1", "run-1", "outline", TypeModuleStarted))
	evt := receiveEvent(t, sub)
	if evt.EventID != "evt-1" || evt.Type != TypeModuleStarted {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestRouterBuffersUntilSubscribed(t *testing.T) {
	router := NewRouter()
	router.Route(testEvent("evt-1", "run-1", "outline", TypeModuleCompleted))

	sub := router.Subscribe("outline")
	defer sub.Close()
	evt := receiveEvent(t, sub)
	if evt.EventID != "evt-1" {
		t.Fatalf("expected buffered event, got %+v", evt)
	}
}

func TestRouterDeduplicatesByEventID(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("outline")
	defer sub.Close()

	router.Route(testEvent("evt-1", "run-1", "outline", TypeModuleStarted))
	router.Route(testEvent("evt-1", "run-1", "outline", TypeModuleStarted))
	receiveEvent(t, sub)
	select {
	case evt := <-sub.Events:
		t.Fatalf("duplicate delivered: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterRoutesRunLevelEventsToLastModule(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("review")
	defer sub.Close()

	router.Route(testEvent("evt-1", "run-1", "review", TypeModuleCompleted))
	receiveEvent(t, sub)

	phaseDone := testEvent("evt-2", "run-1", "", TypePhaseCompleted)
	router.Route(phaseDone)
	evt := receiveEvent(t, sub)
	if evt.Type != TypePhaseCompleted {
		t.Fatalf("expected run-level event routed to last module, got %+v", evt)
	}
}

func TestSubscriberOverflowKeepsCriticalEvents(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe("outline")
	defer sub.Close()

	router.Route(testEvent("evt-1", "run-1", "outline", TypeModuleError))
	router.Route(testEvent("evt-2", "run-1", "outline", TypeModuleStarted))

	evt := receiveEvent(t, sub)
	if evt.Type != TypeModuleError {
		t.Fatalf("critical event displaced by %s", evt.Type)
	}
}
