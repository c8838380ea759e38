package engine

import (
	"context"
	"sync"
	"time"

	"github.com/agentic-hq/core/pkg/models"
	"github.com/agentic-hq/core/pkg/store"
)

// fakeStore is an in-memory Store for engine tests. All mutation is guarded
// because the scheduler runs deferred tasks on their own goroutines.
type fakeStore struct {
	mu sync.Mutex

	triggers    []models.Trigger
	triggersErr error

	executions map[string]*models.Execution
	steps      map[string][]models.Step // keyed by flowID

	admitResult *store.AdmitResult
	admitErr    error

	admitCalls    []store.AdmitParams
	failedReasons []string
	triggerCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions: make(map[string]*models.Execution),
		steps:      make(map[string][]models.Step),
	}
}

func (f *fakeStore) ActiveTriggers(_ context.Context, _, _ string, _ bool) ([]models.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggerCalls++
	return f.triggers, f.triggersErr
}

func (f *fakeStore) Execution(_ context.Context, id string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) StepsByFlow(_ context.Context, flowID string) ([]models.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps[flowID], nil
}

func (f *fakeStore) RunningExecutions(_ context.Context) ([]models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var running []models.Execution
	for _, e := range f.executions {
		if e.Status == models.ExecutionRunning {
			running = append(running, *e)
		}
	}
	return running, nil
}

func (f *fakeStore) Admit(_ context.Context, p store.AdmitParams) (*store.AdmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admitCalls = append(f.admitCalls, p)
	if f.admitErr != nil {
		return nil, f.admitErr
	}
	if f.admitResult != nil {
		if f.admitResult.ExecutionID != "" {
			f.executions[f.admitResult.ExecutionID] = &models.Execution{
				ID:        f.admitResult.ExecutionID,
				SessionID: p.SessionID,
				FlowID:    p.FlowID,
				Status:    models.ExecutionRunning,
			}
		}
		return f.admitResult, nil
	}
	return &store.AdmitResult{}, nil
}

func (f *fakeStore) InsertFailedExecution(_ context.Context, _ store.AdmitParams, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedReasons = append(f.failedReasons, reason)
	return nil
}

func (f *fakeStore) SetCurrentStep(_ context.Context, executionID string, order int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[executionID]; ok {
		e.CurrentStep = order
	}
	return nil
}

func (f *fakeStore) CompleteExecution(_ context.Context, executionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[executionID]; ok {
		e.Status = models.ExecutionCompleted
	}
	return nil
}

func (f *fakeStore) SetExecutionError(_ context.Context, executionID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[executionID]; ok {
		e.Error = &msg
	}
	return nil
}

func (f *fakeStore) status(id string) models.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[id]; ok {
		return e.Status
	}
	return ""
}

func (f *fakeStore) executionError(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[id]; ok && e.Error != nil {
		return *e.Error
	}
	return ""
}

func (f *fakeStore) admitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.admitCalls)
}

func (f *fakeStore) failed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failedReasons...)
}

// fakeLock grants or denies every acquisition and records releases.
type fakeLock struct {
	mu       sync.Mutex
	deny     bool
	acquired []string
	released []string
}

func (f *fakeLock) TryAcquire(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return false, nil
	}
	f.acquired = append(f.acquired, key)
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key)
}

// fakeProcessor records step invocations in order.
type fakeProcessor struct {
	mu    sync.Mutex
	calls []processedStep
	fail  map[int]error // by step order
}

type processedStep struct {
	ExecutionID string
	StepID      string
	Order       int
}

func (f *fakeProcessor) Execute(_ context.Context, executionID, stepID string, stepOrder int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, processedStep{executionID, stepID, stepOrder})
	if err, ok := f.fail[stepOrder]; ok {
		return err
	}
	return nil
}

func (f *fakeProcessor) processed() []processedStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]processedStep(nil), f.calls...)
}

// newTestEngine wires an Engine whose step timer returns immediately.
func newTestEngine(st *fakeStore, lk *fakeLock, proc *fakeProcessor) *Engine {
	e := New(st, lk, proc)
	e.sleep = func(time.Duration) {}
	return e
}
