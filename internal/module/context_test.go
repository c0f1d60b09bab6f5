package module

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContextMergeAndSnapshot(t *testing.T) {
	ec := NewContextFrom(map[string]any{"goal": "draft"})
	ec.Merge(map[string]any{"outline": []string{"intro", "body"}})
	ec.Set("score", 0.7)

	if got, ok := ec.Get("goal"); !ok || got != "draft" {
		t.Fatalf("expected seeded goal, got %v ok=%t", got, ok)
	}
	snap := ec.Snapshot()
	snap["goal"] = "mutated"
	if got, _ := ec.Get("goal"); got != "draft" {
		t.Fatalf("snapshot mutation leaked into context")
	}
	keys := ec.Keys()
	want := []string{"goal", "outline", "score"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected sorted keys %v, got %v", want, keys)
		}
	}
}

func TestSuspendableRunnerWaitsForOutcome(t *testing.T) {
	runner := Suspendable(func(ctx context.Context, ec *Context) <-chan Outcome {
		done := make(chan Outcome, 1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			done <- Outcome{Updates: map[string]any{"async": true}}
		}()
		return done
	})
	updates, err := runner.Run(context.Background(), NewContext())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if updates["async"] != true {
		t.Fatalf("expected async update, got %v", updates)
	}
}

func TestSuspendableRunnerHonorsCancellation(t *testing.T) {
	runner := Suspendable(func(ctx context.Context, ec *Context) <-chan Outcome {
		return make(chan Outcome) // never delivers
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, NewContext())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
