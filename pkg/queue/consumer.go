package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentic-hq/core/pkg/models"
)

// MessageHandler receives decoded inbound payloads. Implementations own all
// downstream error handling; the consumer only logs, acks and keeps reading.
type MessageHandler interface {
	HandleNewMessage(ctx context.Context, msg models.NewMessagePayload)
	HandleExecuteStep(ctx context.Context, executionID, stepID string)
}

// Consumer is the long-running reader of the incoming stream. Every
// delivered entry is acknowledged — including malformed ones, which would
// otherwise poison the pending list forever.
type Consumer struct {
	rdb      *redis.Client
	handler  MessageHandler
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a Consumer dispatching to handler.
func NewConsumer(rdb *redis.Client, handler MessageHandler) *Consumer {
	return &Consumer{
		rdb:     rdb,
		handler: handler,
		stopCh:  make(chan struct{}),
	}
}

// EnsureGroup creates the consumer group (and the stream, if missing) at the
// $ position. An already-existing group is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, IncomingStream, GroupName, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start begins the read loop in a goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the read loop to exit and waits for it. Safe to call more
// than once. In-flight dispatch goroutines are not awaited; their writes go
// through the database and survive shutdown.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	log := slog.With("stream", IncomingStream, "group", GroupName)
	log.Info("Listening for incoming messages")

	for {
		select {
		case <-c.stopCh:
			log.Info("Consumer shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, consumer shutting down")
			return
		default:
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    GroupName,
			Consumer: ConsumerName,
			Streams:  []string{IncomingStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue // block timeout, nothing delivered
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("Error reading from stream", "error", err)
			c.sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.dispatch(ctx, stream.Stream, message)
			}
		}
	}
}

// dispatch decodes one entry, hands it to the handler on its own goroutine
// so the read loop never blocks on downstream work, and acknowledges it.
func (c *Consumer) dispatch(ctx context.Context, streamKey string, message redis.XMessage) {
	defer c.ack(ctx, streamKey, message.ID)

	raw, ok := message.Values["payload"].(string)
	if !ok {
		slog.Error("Stream entry has no payload field", "entry_id", message.ID)
		return
	}

	payload, err := models.DecodeIncomingPayload([]byte(raw))
	if err != nil {
		// Poison-pill drop: log, ack (deferred), move on.
		slog.Error("Failed to parse payload", "entry_id", message.ID, "error", err)
		return
	}

	switch payload.Type {
	case models.PayloadTypeNewMessage:
		msg := *payload.NewMessage
		content := ""
		if msg.Message.Text != nil {
			content = *msg.Message.Text
		}
		slog.Info("Received NEW_MESSAGE",
			"bot_id", msg.BotID,
			"session_id", msg.SessionID,
			"from_me", msg.FromMe,
			"content_preview", preview(content, 50))
		go c.handler.HandleNewMessage(ctx, msg)

	case models.PayloadTypeExecuteStep:
		p := *payload.ExecuteStep
		slog.Info("Received EXECUTE_STEP",
			"execution_id", p.ExecutionID, "step_id", p.StepID)
		go c.handler.HandleExecuteStep(ctx, p.ExecutionID, p.StepID)
	}
}

func (c *Consumer) ack(ctx context.Context, streamKey, id string) {
	if err := c.rdb.XAck(ctx, streamKey, GroupName, id).Err(); err != nil {
		slog.Warn("Failed to ack stream entry", "entry_id", id, "error", err)
	}
}

// sleep waits for the given duration or until stop is signalled.
func (c *Consumer) sleep(d time.Duration) {
	select {
	case <-c.stopCh:
	case <-time.After(d):
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
