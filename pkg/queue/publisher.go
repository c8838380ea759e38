// Package queue connects the core to its Redis streams: the inbound event
// stream consumed under a consumer group and the outbound send-command
// stream produced for platform adapters.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentic-hq/core/pkg/models"
)

// Stream and consumer-group names shared with the session adapters.
const (
	IncomingStream = "agentic:queue:incoming"
	OutgoingStream = "agentic:queue:outgoing"
	GroupName      = "agentic_core_group"
	ConsumerName   = "core_worker_1"

	// outgoingMaxLen caps the outbound stream with approximate (~) trimming
	// so it never grows unboundedly.
	outgoingMaxLen = 10000
)

// Publisher appends send commands to the outbound stream.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher over the shared Redis client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish appends one outgoing message and returns the stream entry ID.
func (p *Publisher) Publish(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outgoing message: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: OutgoingStream,
		MaxLen: outgoingMaxLen,
		Approx: true,
		Values: map[string]any{"payload": string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to %s: %w", OutgoingStream, err)
	}
	return id, nil
}
