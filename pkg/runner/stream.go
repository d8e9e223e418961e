package runner

import (
	"context"
	"time"

	"github.com/aqakit/brain/pkg/utdl"
)

// RunStreamed executes the plan and replays the report as an ordered event
// stream: execution_started, then step_started / step_completed / progress
// per step, then execution_completed. Failures before a report exists
// publish execution_failed instead.
//
// The executor is a one-shot process, so step events are synthesized from
// the finished report rather than observed live. They replay in the plan's
// declared step order regardless of the order the report lists results in.
func (r *Runner) RunStreamed(ctx context.Context, plan *utdl.Plan, executionID string, opts RunOptions) (*Result, error) {
	if r.events == nil {
		return r.Run(ctx, plan, opts)
	}

	r.events.PublishExecutionStarted(executionID, plan.Meta.ID, plan.Meta.Name, len(plan.Steps))
	if r.metrics != nil {
		r.metrics.RecordExecutionStarted()
	}
	started := time.Now()

	result, err := r.Run(ctx, plan, opts)
	if err != nil {
		r.events.PublishExecutionFailed(executionID, err.Error())
		if r.metrics != nil {
			r.metrics.RecordExecutionCompleted(StatusError, time.Since(started))
		}
		return nil, err
	}

	byID := make(map[string]StepReport, len(result.Steps))
	for _, step := range result.Steps {
		byID[step.StepID] = step
	}
	total := len(result.Steps)
	done := 0
	for _, planStep := range plan.Steps {
		step, ok := byID[planStep.ID]
		if !ok {
			continue
		}
		done++
		r.events.PublishStepStarted(executionID, step.StepID, planStep.Action)
		r.events.PublishStepCompleted(executionID, step.StepID, step.Status,
			time.Duration(step.DurationMs)*time.Millisecond)
		r.events.PublishProgress(executionID, done, total)
		if r.metrics != nil {
			r.metrics.RecordStepResult(step.Status)
		}
	}

	r.events.PublishExecutionCompleted(executionID, result.Status,
		time.Duration(result.TotalDurationMs)*time.Millisecond)
	if r.metrics != nil {
		r.metrics.RecordExecutionCompleted(result.Status, time.Since(started))
	}
	return result, nil
}
