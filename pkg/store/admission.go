package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AdmitParams carries everything the admission transaction needs about the
// matched trigger and the event that matched it.
type AdmitParams struct {
	SessionID     string
	FlowID        string
	Sender        string
	Keyword       string
	CooldownMs    int
	UsageLimit    int
	ExcludesFlows []string
}

// AdmitResult is the outcome of one admission attempt.
type AdmitResult struct {
	// ExecutionID is set when a RUNNING execution was created.
	ExecutionID string
	// RejectReason is set when a constraint check failed. Exactly one of
	// ExecutionID / RejectReason is non-empty on a nil error.
	RejectReason string
}

// Admit runs the admission checks and, if they pass, inserts a fresh RUNNING
// execution — all inside one transaction so concurrent admissions on other
// sessions cannot slip between a check and the insert.
//
// A rejection rolls the transaction back and only reports the reason; the
// caller records the FAILED audit row with InsertFailedExecution so it
// survives the rollback.
func (s *Store) Admit(ctx context.Context, p AdmitParams) (*AdmitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Cooldown: measured from the most recent prior execution's startedAt,
	// regardless of how that execution ended.
	if p.CooldownMs > 0 {
		var startedAt time.Time
		err := tx.QueryRow(ctx, `
            SELECT "startedAt" FROM "Execution"
            WHERE "sessionId" = $1 AND "flowId" = $2
            ORDER BY "startedAt" DESC LIMIT 1`,
			p.SessionID, p.FlowID).Scan(&startedAt)
		if err == nil {
			elapsed := time.Since(startedAt).Milliseconds()
			if elapsed < int64(p.CooldownMs) {
				return &AdmitResult{
					RejectReason: fmt.Sprintf("Cooldown active (%d/%dms)", elapsed, p.CooldownMs),
				}, nil
			}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to check cooldown: %w", err)
		}
	}

	// Usage limit: counts prior executions of any status.
	if p.UsageLimit > 0 {
		var count int64
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM "Execution" WHERE "sessionId" = $1 AND "flowId" = $2`,
			p.SessionID, p.FlowID).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to check usage limit: %w", err)
		}
		if count >= int64(p.UsageLimit) {
			return &AdmitResult{
				RejectReason: fmt.Sprintf("Usage limit reached (%d/%d)", count, p.UsageLimit),
			}, nil
		}
	}

	// Exclusion: any prior execution of a mutually exclusive flow blocks.
	if len(p.ExcludesFlows) > 0 {
		var count int64
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM "Execution" WHERE "sessionId" = $1 AND "flowId" = ANY($2)`,
			p.SessionID, p.ExcludesFlows).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to check flow exclusions: %w", err)
		}
		if count > 0 {
			return &AdmitResult{
				RejectReason: "Mutually exclusive flow already executed",
			}, nil
		}
	}

	executionID := uuid.New().String()
	if _, err := tx.Exec(ctx, `
        INSERT INTO "Execution"
            (id, "sessionId", "flowId", "platformUserId", status, "currentStep",
             "variableContext", "startedAt", "updatedAt", trigger)
        VALUES ($1, $2, $3, $4, 'RUNNING', 0, $5, NOW(), NOW(), $6)`,
		executionID, p.SessionID, p.FlowID, p.Sender,
		json.RawMessage(`{}`), p.Keyword); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit admission: %w", err)
	}
	return &AdmitResult{ExecutionID: executionID}, nil
}

// InsertFailedExecution writes a FAILED execution row as an audit trail for
// a rejected admission. It runs on the pool, not the admission transaction,
// so the row survives the rollback.
func (s *Store) InsertFailedExecution(ctx context.Context, p AdmitParams, reason string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO "Execution"
            (id, "sessionId", "flowId", "platformUserId", status, "currentStep",
             "variableContext", "startedAt", "updatedAt", "completedAt", error, trigger)
        VALUES ($1, $2, $3, $4, 'FAILED', 0, $5, NOW(), NOW(), NOW(), $6, $7)`,
		uuid.New().String(), p.SessionID, p.FlowID, p.Sender,
		json.RawMessage(`{}`), reason, p.Keyword)
	if err != nil {
		return fmt.Errorf("failed to create FAILED execution record: %w", err)
	}
	return nil
}
