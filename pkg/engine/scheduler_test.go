package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/core/pkg/models"
)

func runningExecution(id, flowID string, currentStep int) *models.Execution {
	return &models.Execution{
		ID:          id,
		SessionID:   "sess-1",
		FlowID:      flowID,
		Status:      models.ExecutionRunning,
		CurrentStep: currentStep,
	}
}

func textSteps(flowID string, orders ...int) []models.Step {
	steps := make([]models.Step, 0, len(orders))
	for _, o := range orders {
		steps = append(steps, models.Step{
			ID:     flowID + "-step-" + string(rune('a'+o)),
			FlowID: flowID,
			Type:   models.StepTypeText,
			Order:  o,
		})
	}
	return steps
}

func TestScheduleUnknownExecutionIsDropped(t *testing.T) {
	st := newFakeStore()
	proc := &fakeProcessor{}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.ScheduleStep(context.Background(), "missing", 0)

	assert.Empty(t, proc.processed())
}

func TestScheduleTerminalExecutionIsDropped(t *testing.T) {
	st := newFakeStore()
	exec := runningExecution("exec-1", "flow-1", 0)
	exec.Status = models.ExecutionCompleted
	st.executions["exec-1"] = exec
	st.steps["flow-1"] = textSteps("flow-1", 0)
	proc := &fakeProcessor{}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.ScheduleStep(context.Background(), "exec-1", 0)

	assert.Empty(t, proc.processed())
	assert.Equal(t, models.ExecutionCompleted, st.status("exec-1"))
}

func TestScheduleBeyondLastStepCompletes(t *testing.T) {
	st := newFakeStore()
	st.executions["exec-1"] = runningExecution("exec-1", "flow-1", 2)
	st.steps["flow-1"] = textSteps("flow-1", 0, 1)
	proc := &fakeProcessor{}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.ScheduleStep(context.Background(), "exec-1", 2)

	assert.Equal(t, models.ExecutionCompleted, st.status("exec-1"))
	assert.Empty(t, proc.processed())
}

func TestScheduleRunsChainAndTracksCurrentStep(t *testing.T) {
	st := newFakeStore()
	st.executions["exec-1"] = runningExecution("exec-1", "flow-1", 0)
	st.steps["flow-1"] = textSteps("flow-1", 0, 1, 2)
	proc := &fakeProcessor{}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.ScheduleStep(context.Background(), "exec-1", 0)

	require.Eventually(t, func() bool {
		return st.status("exec-1") == models.ExecutionCompleted
	}, 2*time.Second, 5*time.Millisecond)

	steps := proc.processed()
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i, s.Order)
	}
}

func TestProcessorErrorIsRecordedAndFlowContinues(t *testing.T) {
	st := newFakeStore()
	st.executions["exec-1"] = runningExecution("exec-1", "flow-1", 0)
	st.steps["flow-1"] = textSteps("flow-1", 0, 1)
	proc := &fakeProcessor{fail: map[int]error{0: errors.New("redis timeout")}}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.ScheduleStep(context.Background(), "exec-1", 0)

	require.Eventually(t, func() bool {
		return st.status("exec-1") == models.ExecutionCompleted
	}, 2*time.Second, 5*time.Millisecond)

	require.Len(t, proc.processed(), 2, "failure on step 0 must not stop step 1")
	assert.Equal(t, "Step 0 error: redis timeout", st.executionError("exec-1"))
}

func TestRecoverReschedulesFromCurrentStep(t *testing.T) {
	st := newFakeStore()
	st.executions["exec-1"] = runningExecution("exec-1", "flow-1", 1)
	st.steps["flow-1"] = textSteps("flow-1", 0, 1, 2)
	completed := runningExecution("exec-2", "flow-1", 0)
	completed.Status = models.ExecutionCompleted
	st.executions["exec-2"] = completed
	proc := &fakeProcessor{}
	e := newTestEngine(st, &fakeLock{}, proc)

	e.Recover(context.Background())

	require.Eventually(t, func() bool {
		return st.status("exec-1") == models.ExecutionCompleted
	}, 2*time.Second, 5*time.Millisecond)

	steps := proc.processed()
	require.Len(t, steps, 2, "recovery resumes at currentStep, not at zero")
	assert.Equal(t, 1, steps[0].Order)
	assert.Equal(t, 2, steps[1].Order)
	for _, s := range steps {
		assert.Equal(t, "exec-1", s.ExecutionID)
	}
}

func TestStepDelayWithinJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := stepDelay(1000, 50)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestStepDelayNoJitterIsExact(t *testing.T) {
	assert.Equal(t, 2*time.Second, stepDelay(2000, 0))
}

func TestStepDelayZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), stepDelay(0, 50))
}
