// Package store is the typed access layer over the platform's flow schema.
// Queries mirror the Prisma-owned tables, so identifiers are camelCase and
// quoted.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-hq/core/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store provides typed access to flows, triggers, executions, steps and
// sessions.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over the shared connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const triggerColumns = `
    t.id, t."botId", t."sessionId", t.keyword, t."matchType",
    t."isActive", t."flowId", t.scope, t."createdAt", t."updatedAt",
    f."cooldownMs", f."usageLimit", f."excludesFlows"`

// ActiveTriggers returns the active triggers that can fire for the given
// event, with the owning flow's constraint fields joined. Direction filtering
// happens here: fromMe selects OUTGOING/BOTH, otherwise INCOMING/BOTH. A
// trigger applies when it is pinned to the event session or is bot-wide
// (sessionId NULL). Ordered by creation time so tie-breaks within a match
// tier are stable.
func (s *Store) ActiveTriggers(ctx context.Context, botID, sessionID string, fromMe bool) ([]models.Trigger, error) {
	scopes := []string{string(models.ScopeIncoming), string(models.ScopeBoth)}
	if fromMe {
		scopes = []string{string(models.ScopeOutgoing), string(models.ScopeBoth)}
	}

	rows, err := s.pool.Query(ctx, `
        SELECT`+triggerColumns+`
        FROM "Trigger" t
        JOIN "Flow" f ON t."flowId" = f.id
        WHERE t."isActive" = true
          AND t.scope = ANY($1)
          AND (
            t."sessionId" = $2
            OR (t."botId" = $3 AND t."sessionId" IS NULL)
          )
        ORDER BY t."createdAt", t.id`,
		scopes, sessionID, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active triggers: %w", err)
	}
	defer rows.Close()

	var triggers []models.Trigger
	for rows.Next() {
		var t models.Trigger
		if err := rows.Scan(
			&t.ID, &t.BotID, &t.SessionID, &t.Keyword, &t.MatchType,
			&t.IsActive, &t.FlowID, &t.Scope, &t.CreatedAt, &t.UpdatedAt,
			&t.CooldownMs, &t.UsageLimit, &t.ExcludesFlows,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

const executionColumns = `
    id, "sessionId", "flowId", "platformUserId", status, "currentStep",
    "variableContext", "startedAt", "updatedAt", "completedAt", error, trigger`

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var e models.Execution
	err := row.Scan(
		&e.ID, &e.SessionID, &e.FlowID, &e.PlatformUserID, &e.Status,
		&e.CurrentStep, &e.VariableContext, &e.StartedAt, &e.UpdatedAt,
		&e.CompletedAt, &e.Error, &e.Trigger,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}
	return &e, nil
}

// Execution fetches a single execution by id.
func (s *Store) Execution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+executionColumns+` FROM "Execution" WHERE id = $1`, id)
	return scanExecution(row)
}

// RunningExecutions returns every execution still marked RUNNING. Used by
// startup recovery.
func (s *Store) RunningExecutions(ctx context.Context) ([]models.Execution, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+executionColumns+` FROM "Execution" WHERE status = 'RUNNING'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query running executions: %w", err)
	}
	defer rows.Close()

	var executions []models.Execution
	for rows.Next() {
		var e models.Execution
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.FlowID, &e.PlatformUserID, &e.Status,
			&e.CurrentStep, &e.VariableContext, &e.StartedAt, &e.UpdatedAt,
			&e.CompletedAt, &e.Error, &e.Trigger,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

const stepColumns = `
    id, "flowId", type, content, "mediaUrl", metadata,
    "delayMs", "jitterPct", "order", "createdAt", "updatedAt"`

// StepsByFlow returns the steps of a flow ordered by their dispatch order.
func (s *Store) StepsByFlow(ctx context.Context, flowID string) ([]models.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+stepColumns+` FROM "Step" WHERE "flowId" = $1 ORDER BY "order" ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var st models.Step
		if err := rows.Scan(
			&st.ID, &st.FlowID, &st.Type, &st.Content, &st.MediaURL, &st.Metadata,
			&st.DelayMs, &st.JitterPct, &st.Order, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// Step fetches a single step by id.
func (s *Store) Step(ctx context.Context, id string) (*models.Step, error) {
	var st models.Step
	err := s.pool.QueryRow(ctx,
		`SELECT`+stepColumns+` FROM "Step" WHERE id = $1`, id).Scan(
		&st.ID, &st.FlowID, &st.Type, &st.Content, &st.MediaURL, &st.Metadata,
		&st.DelayMs, &st.JitterPct, &st.Order, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}
	return &st, nil
}

// Session fetches a single session by id.
func (s *Store) Session(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx, `
        SELECT id, platform, identifier, "botId", name, status, "authData",
               "createdAt", "updatedAt"
        FROM "Session" WHERE id = $1`, id).Scan(
		&sess.ID, &sess.Platform, &sess.Identifier, &sess.BotID, &sess.Name,
		&sess.Status, &sess.AuthData, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &sess, nil
}

// SetCurrentStep records that the step at order is being dispatched now.
func (s *Store) SetCurrentStep(ctx context.Context, executionID string, order int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE "Execution" SET "currentStep" = $1, "updatedAt" = NOW() WHERE id = $2`,
		order, executionID)
	if err != nil {
		return fmt.Errorf("failed to update current step: %w", err)
	}
	return nil
}

// CompleteExecution transitions an execution to COMPLETED.
func (s *Store) CompleteExecution(ctx context.Context, executionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE "Execution" SET status = 'COMPLETED', "completedAt" = NOW(), "updatedAt" = NOW() WHERE id = $1`,
		executionID)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	return nil
}

// SetExecutionError records a step failure on the execution without
// changing its status; the flow keeps advancing.
func (s *Store) SetExecutionError(ctx context.Context, executionID, msg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE "Execution" SET error = $1, "updatedAt" = NOW() WHERE id = $2`,
		msg, executionID)
	if err != nil {
		return fmt.Errorf("failed to record execution error: %w", err)
	}
	return nil
}
