// Package engine decides whether an inbound event opens a flow execution
// and paces a running execution through its steps.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/agentic-hq/core/pkg/lock"
	"github.com/agentic-hq/core/pkg/matcher"
	"github.com/agentic-hq/core/pkg/models"
	"github.com/agentic-hq/core/pkg/store"
)

// Store is the persistence surface the engine depends on. *store.Store
// satisfies it; tests provide fakes.
type Store interface {
	ActiveTriggers(ctx context.Context, botID, sessionID string, fromMe bool) ([]models.Trigger, error)
	Execution(ctx context.Context, id string) (*models.Execution, error)
	StepsByFlow(ctx context.Context, flowID string) ([]models.Step, error)
	RunningExecutions(ctx context.Context) ([]models.Execution, error)
	Admit(ctx context.Context, p store.AdmitParams) (*store.AdmitResult, error)
	InsertFailedExecution(ctx context.Context, p store.AdmitParams, reason string) error
	SetCurrentStep(ctx context.Context, executionID string, order int) error
	CompleteExecution(ctx context.Context, executionID string) error
	SetExecutionError(ctx context.Context, executionID, msg string) error
}

// Locker is the single-flight admission guard. *lock.FlowLock satisfies it.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// StepExecutor interprets one step into an outbound record.
// *processor.Processor satisfies it.
type StepExecutor interface {
	Execute(ctx context.Context, executionID, stepID string, stepOrder int) error
}

// Engine is the trigger dispatcher and step scheduler.
type Engine struct {
	store     Store
	lock      Locker
	processor StepExecutor

	// sleep is swapped out by tests to avoid real timer waits.
	sleep func(time.Duration)
}

// New creates an Engine over its collaborators.
func New(st Store, locker Locker, processor StepExecutor) *Engine {
	return &Engine{
		store:     st,
		lock:      locker,
		processor: processor,
		sleep:     time.Sleep,
	}
}

// HandleNewMessage maps one chat event to at most one new execution:
// trigger match, single-flight lock, transactional admission checks, then
// scheduling of step 0. Rejections become FAILED audit rows; a held lock is
// a silent drop.
func (e *Engine) HandleNewMessage(ctx context.Context, msg models.NewMessagePayload) {
	content := ""
	if msg.Message.Text != nil {
		content = *msg.Message.Text
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	triggers, err := e.store.ActiveTriggers(ctx, msg.BotID, msg.SessionID, msg.FromMe)
	if err != nil {
		slog.Error("Failed to fetch active triggers",
			"bot_id", msg.BotID, "session_id", msg.SessionID, "error", err)
		return
	}
	if len(triggers) == 0 {
		return
	}

	trigger := matcher.Find(content, triggers)
	if trigger == nil {
		return
	}

	lockKey := lock.Key(msg.SessionID, trigger.FlowID)
	acquired, err := e.lock.TryAcquire(ctx, lockKey)
	if err != nil {
		slog.Error("Failed to acquire flow lock", "key", lockKey, "error", err)
		return
	}
	if !acquired {
		slog.Info("Trigger ignored: lock already held (concurrent execution in progress)",
			"trigger", trigger.Keyword)
		return
	}
	defer e.lock.Release(ctx, lockKey)

	params := store.AdmitParams{
		SessionID:     msg.SessionID,
		FlowID:        trigger.FlowID,
		Sender:        msg.Sender,
		Keyword:       trigger.Keyword,
		CooldownMs:    trigger.CooldownMs,
		UsageLimit:    trigger.UsageLimit,
		ExcludesFlows: trigger.ExcludesFlows,
	}

	result, err := e.store.Admit(ctx, params)
	if err != nil {
		slog.Error("Admission failed", "trigger", trigger.Keyword, "error", err)
		return
	}
	if result.RejectReason != "" {
		slog.Info(result.RejectReason, "trigger", trigger.Keyword)
		if err := e.store.InsertFailedExecution(ctx, params, result.RejectReason); err != nil {
			slog.Error("Failed to record rejected admission", "error", err)
		}
		return
	}

	slog.Info("Matched trigger -> creating execution",
		"trigger", trigger.Keyword,
		"flow_id", trigger.FlowID,
		"execution_id", result.ExecutionID)

	e.ScheduleStep(ctx, result.ExecutionID, 0)
}

// HandleExecuteStep is the legacy external dispatch of a single step. The
// order forwarded downstream is -1 because the caller addressed the step by
// id, not by position.
func (e *Engine) HandleExecuteStep(ctx context.Context, executionID, stepID string) {
	if err := e.processor.Execute(ctx, executionID, stepID, -1); err != nil {
		slog.Error("Failed to execute step",
			"execution_id", executionID, "step_id", stepID, "error", err)
	}
}
