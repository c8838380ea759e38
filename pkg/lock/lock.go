// Package lock implements the distributed single-flight guard that keeps
// two concurrent admissions of the same (session, flow) pair from both
// opening an execution.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL bounds how long an abandoned lock can stall admissions for its pair.
// A crashed process never releases; expiry does.
const TTL = 30 * time.Second

// FlowLock acquires and releases per-(session, flow) admission locks over a
// shared Redis instance.
type FlowLock struct {
	rdb *redis.Client
}

// New creates a FlowLock over the shared Redis client.
func New(rdb *redis.Client) *FlowLock {
	return &FlowLock{rdb: rdb}
}

// Key returns the lock key for a (session, flow) pair.
func Key(sessionID, flowID string) string {
	return fmt.Sprintf("flow:lock:%s:%s", sessionID, flowID)
}

// TryAcquire attempts an atomic set-if-absent with expiry. It returns false
// when another admission holds the lock; that is normal concurrency, not an
// error.
func (l *FlowLock) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, "1", TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the lock key. Failures are logged, not returned — the TTL
// clears the key either way, and admission has already finished.
func (l *FlowLock) Release(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		slog.Warn("Failed to release flow lock", "key", key, "error", err)
	}
}
