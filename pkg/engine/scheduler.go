package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/agentic-hq/core/pkg/models"
	"github.com/agentic-hq/core/pkg/store"
)

// ScheduleStep arranges for the step at the given order to run after its
// configured delay, then advance to the next one.
//
// Every call re-reads the execution from the database, so flipping the
// status row is how an external actor stops a flow: the next hop observes
// the terminal state and drops. A missing order means the flow ran out of
// steps and completes cleanly.
func (e *Engine) ScheduleStep(ctx context.Context, executionID string, order int) {
	execution, err := e.store.Execution(ctx, executionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Execution not found for scheduling", "execution_id", executionID)
		return
	}
	if err != nil {
		slog.Error("Failed to fetch execution", "execution_id", executionID, "error", err)
		return
	}

	if execution.Status != models.ExecutionRunning {
		slog.Info("Execution not RUNNING, skipping schedule",
			"execution_id", executionID, "status", execution.Status)
		return
	}

	steps, err := e.store.StepsByFlow(ctx, execution.FlowID)
	if err != nil {
		slog.Error("Failed to fetch steps", "execution_id", executionID, "error", err)
		return
	}

	var step *models.Step
	for i := range steps {
		if steps[i].Order == order {
			step = &steps[i]
			break
		}
	}
	if step == nil {
		slog.Info("Flow finished",
			"execution_id", executionID, "flow_id", execution.FlowID)
		if err := e.store.CompleteExecution(ctx, executionID); err != nil {
			slog.Error("Failed to mark execution completed",
				"execution_id", executionID, "error", err)
		}
		return
	}

	delay := stepDelay(step.DelayMs, step.JitterPct)
	slog.Info("Scheduling step",
		"execution_id", executionID, "step_order", order, "delay_ms", delay.Milliseconds())

	dispatched := *step
	go func() {
		e.sleep(delay)
		e.executeAndAdvance(ctx, executionID, dispatched)
	}()
}

// executeAndAdvance runs one step and re-enters ScheduleStep for the next.
// Processor errors are recorded on the execution but never stop the flow.
func (e *Engine) executeAndAdvance(ctx context.Context, executionID string, step models.Step) {
	if err := e.store.SetCurrentStep(ctx, executionID, step.Order); err != nil {
		slog.Error("Failed to update current step",
			"execution_id", executionID, "step_order", step.Order, "error", err)
	}

	if err := e.processor.Execute(ctx, executionID, step.ID, step.Order); err != nil {
		slog.Error("Step execution failed, continuing to next step",
			"execution_id", executionID,
			"step_id", step.ID,
			"step_order", step.Order,
			"error", err)
		msg := fmt.Sprintf("Step %d error: %v", step.Order, err)
		if err := e.store.SetExecutionError(ctx, executionID, msg); err != nil {
			slog.Error("Failed to record step error",
				"execution_id", executionID, "error", err)
		}
	}

	e.ScheduleStep(ctx, executionID, step.Order+1)
}

// Recover re-schedules every RUNNING execution from its persisted
// currentStep. Called once at startup; currentStep always points at the next
// step to dispatch, so a crash between steps loses nothing and a crash
// mid-step re-emits it (downstream dedupes by execution_id + step_order).
func (e *Engine) Recover(ctx context.Context) {
	slog.Info("Checking for RUNNING executions to recover...")

	executions, err := e.store.RunningExecutions(ctx)
	if err != nil {
		slog.Error("Failed to query RUNNING executions for recovery", "error", err)
		return
	}
	if len(executions) == 0 {
		slog.Info("No RUNNING executions to recover")
		return
	}

	slog.Info("Recovering RUNNING executions", "count", len(executions))
	for _, exec := range executions {
		slog.Info("Re-scheduling execution",
			"execution_id", exec.ID, "current_step", exec.CurrentStep)
		e.ScheduleStep(ctx, exec.ID, exec.CurrentStep)
	}
}

// stepDelay computes the pre-dispatch wait: delayMs plus a uniformly sampled
// jitter in [-variance, +variance] where variance = delayMs*jitterPct/100
// (integer arithmetic), floored at zero.
func stepDelay(delayMs, jitterPct int) time.Duration {
	base := int64(delayMs)
	variance := base * int64(jitterPct) / 100
	var jitter int64
	if variance > 0 {
		jitter = rand.Int63n(2*variance+1) - variance
	}
	final := base + jitter
	if final < 0 {
		final = 0
	}
	return time.Duration(final) * time.Millisecond
}
