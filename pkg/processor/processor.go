// Package processor interprets a step into a send command on the outbound
// stream. Only WhatsApp sessions produce output today; other platforms are
// logged and skipped.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // conditional-time evaluation needs the IANA zone in minimal containers

	"github.com/agentic-hq/core/pkg/models"
	"github.com/agentic-hq/core/pkg/store"
)

// conditionalZone is the fixed business timezone for CONDITIONAL_TIME
// branches; flows are authored against it regardless of server locale.
const conditionalZone = "America/Mexico_City"

// Reader is the subset of the store the processor reads from.
type Reader interface {
	Step(ctx context.Context, id string) (*models.Step, error)
	Execution(ctx context.Context, id string) (*models.Execution, error)
	Session(ctx context.Context, id string) (*models.Session, error)
}

// Emitter appends outgoing messages to the outbound stream.
// *queue.Publisher satisfies it.
type Emitter interface {
	Publish(ctx context.Context, msg models.OutgoingMessage) (string, error)
}

// Processor turns steps into outgoing-queue records.
type Processor struct {
	store   Reader
	emitter Emitter
	zone    *time.Location

	// now is swapped out by tests to pin the conditional-time clock.
	now func() time.Time
}

// New creates a Processor over the store and outbound emitter.
func New(st Reader, emitter Emitter) (*Processor, error) {
	zone, err := time.LoadLocation(conditionalZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", conditionalZone, err)
	}
	return &Processor{
		store:   st,
		emitter: emitter,
		zone:    zone,
		now:     time.Now,
	}, nil
}

// Execute reads the step, execution and session, builds the outgoing payload
// for the step type and emits it. Missing entities and missing media are
// logged and skipped, not returned as errors — the flow must keep advancing.
func (p *Processor) Execute(ctx context.Context, executionID, stepID string, stepOrder int) error {
	slog.Info("Processing step", "step_id", stepID, "execution_id", executionID)

	step, err := p.store.Step(ctx, stepID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Step not found, skipping", "step_id", stepID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query step: %w", err)
	}

	execution, err := p.store.Execution(ctx, executionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Execution not found", "execution_id", executionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query execution: %w", err)
	}

	session, err := p.store.Session(ctx, execution.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("Session not found for execution",
			"session_id", execution.SessionID, "execution_id", executionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query session: %w", err)
	}

	slog.Info("Executing step",
		"step_type", step.Type,
		"identifier", session.Identifier,
		"platform", session.Platform)

	if session.Platform != models.PlatformWhatsApp {
		slog.Info("Non-WhatsApp platform (not yet supported)",
			"platform", session.Platform,
			"identifier", session.Identifier,
			"step_type", step.Type)
		return nil
	}

	payload := p.buildPayload(step)
	if payload.Empty() {
		return nil
	}

	msg := models.OutgoingMessage{
		BotID:       session.BotID,
		Target:      session.Identifier,
		ExecutionID: executionID,
		StepOrder:   stepOrder,
		Payload:     payload,
	}

	entryID, err := p.emitter.Publish(ctx, msg)
	if err != nil {
		// Emission failures are logged, never thrown: the scheduler must
		// keep advancing and downstream tolerates gaps better than stalls.
		slog.Error("Failed to publish outgoing message",
			"execution_id", executionID, "error", err)
		return nil
	}

	slog.Info("Published outgoing message",
		"stream_id", entryID,
		"execution_id", executionID,
		"step_order", stepOrder)
	return nil
}

// buildPayload maps a step to the platform-neutral outgoing payload. An
// empty payload means nothing should be emitted for this step.
func (p *Processor) buildPayload(step *models.Step) models.OutgoingPayload {
	var payload models.OutgoingPayload

	switch step.Type {
	case models.StepTypeText:
		payload.Text = step.Content

	case models.StepTypeImage:
		if step.MediaURL == nil {
			slog.Error("IMAGE step has no mediaUrl, skipping", "step_id", step.ID)
			break
		}
		payload.Image = &models.MediaPayload{URL: *step.MediaURL}
		payload.Caption = step.Content

	case models.StepTypeAudio, models.StepTypePTT:
		if step.MediaURL == nil {
			slog.Error("Step has no mediaUrl, skipping",
				"step_type", step.Type, "step_id", step.ID)
			break
		}
		ptt := step.Type == models.StepTypePTT
		payload.Audio = &models.MediaPayload{URL: *step.MediaURL}
		payload.PTT = &ptt

	case models.StepTypeConditionalTime:
		payload = p.evaluateConditionalStep(step)

	default:
		slog.Warn("Unsupported step type for WhatsApp", "step_type", step.Type)
	}

	return payload
}
