package runner

import (
	"context"
	"testing"

	"github.com/aqakit/brain/pkg/telemetry"
)

func syncPublisher(t *testing.T) (*telemetry.EventPublisher, *[]telemetry.Event) {
	t.Helper()
	ep, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	var seen []telemetry.Event
	ep.Subscribe(func(event telemetry.Event) {
		seen = append(seen, event)
	}, nil)
	return ep, &seen
}

func eventTypes(events []telemetry.Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestRunStreamedEventOrder(t *testing.T) {
	ep, seen := syncPublisher(t)
	r := New(fakeExecutor(t, passingReport, 0), WithEvents(ep))

	result, err := r.RunStreamed(context.Background(), smokePlan(), "exec-abc123", RunOptions{})
	if err != nil {
		t.Fatalf("RunStreamed: %v", err)
	}
	if !result.Success {
		t.Error("expected a passing result")
	}

	want := []string{
		telemetry.EventTypeExecutionStarted,
		telemetry.EventTypeStepStarted,
		telemetry.EventTypeStepCompleted,
		telemetry.EventTypeProgress,
		telemetry.EventTypeStepStarted,
		telemetry.EventTypeStepCompleted,
		telemetry.EventTypeProgress,
		telemetry.EventTypeExecutionCompleted,
	}
	got := eventTypes(*seen)
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, e := range *seen {
		if e.ExecutionID != "exec-abc123" {
			t.Errorf("event %s carries execution id %q", e.Type, e.ExecutionID)
		}
	}
	if (*seen)[1].StepID != "health" || (*seen)[4].StepID != "list_users" {
		t.Error("step events should follow the plan's declared order")
	}
}

func TestRunStreamedReplaysDeclaredOrder(t *testing.T) {
	// Results listed in reverse; events still replay health first.
	shuffled := `{
  "plan": {"id": "plan-1", "name": "smoke"},
  "summary": {"total": 2, "passed": 2, "failed": 0, "skipped": 0, "total_duration_ms": 128},
  "results": [
    {"step_id": "list_users", "status": "passed", "duration_ms": 86},
    {"step_id": "health", "status": "passed", "duration_ms": 42}
  ]
}`
	ep, seen := syncPublisher(t)
	r := New(fakeExecutor(t, shuffled, 0), WithEvents(ep))

	if _, err := r.RunStreamed(context.Background(), smokePlan(), "exec-0rder1", RunOptions{}); err != nil {
		t.Fatalf("RunStreamed: %v", err)
	}

	var stepIDs []string
	for _, e := range *seen {
		if e.Type == telemetry.EventTypeStepStarted {
			stepIDs = append(stepIDs, e.StepID)
		}
	}
	if len(stepIDs) != 2 || stepIDs[0] != "health" || stepIDs[1] != "list_users" {
		t.Errorf("step order = %v, want [health list_users]", stepIDs)
	}
}

func TestRunStreamedFailurePublishesFailed(t *testing.T) {
	ep, seen := syncPublisher(t)
	r := New(crashingExecutor(t), WithEvents(ep))

	if _, err := r.RunStreamed(context.Background(), smokePlan(), "exec-dead01", RunOptions{}); err == nil {
		t.Fatal("expected an error")
	}

	got := eventTypes(*seen)
	if len(got) != 2 || got[0] != telemetry.EventTypeExecutionStarted || got[1] != telemetry.EventTypeExecutionFailed {
		t.Fatalf("events = %v", got)
	}
}

func TestRunStreamedWithoutPublisher(t *testing.T) {
	r := New(fakeExecutor(t, passingReport, 0))
	result, err := r.RunStreamed(context.Background(), smokePlan(), "exec-quiet1", RunOptions{})
	if err != nil || !result.Success {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
}

func TestRunStreamedProgressCounts(t *testing.T) {
	ep, seen := syncPublisher(t)
	r := New(fakeExecutor(t, failingReport, 1), WithEvents(ep))

	result, err := r.RunStreamed(context.Background(), smokePlan(), "exec-f00d42", RunOptions{})
	if err != nil {
		t.Fatalf("RunStreamed: %v", err)
	}
	if result.Status != StatusFailure {
		t.Errorf("status = %q", result.Status)
	}

	var progress []telemetry.Event
	for _, e := range *seen {
		if e.Type == telemetry.EventTypeProgress {
			progress = append(progress, e)
		}
	}
	if len(progress) != 2 {
		t.Fatalf("progress events = %d", len(progress))
	}
	last := progress[1].Data
	if completed, _ := last["completed"].(int); completed != 2 {
		t.Errorf("completed = %v", last["completed"])
	}
}
