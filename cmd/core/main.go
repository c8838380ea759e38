// Agentic core engine — consumes chat events from the incoming stream,
// opens flow executions and paces their steps onto the outgoing stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/agentic-hq/core/pkg/database"
	"github.com/agentic-hq/core/pkg/engine"
	"github.com/agentic-hq/core/pkg/lock"
	"github.com/agentic-hq/core/pkg/processor"
	"github.com/agentic-hq/core/pkg/queue"
	"github.com/agentic-hq/core/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}
	setupLogging()

	slog.Info("Starting agentic core engine")

	ctx := context.Background()

	// 1. Initialize database pool
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	health, err := dbClient.Health(ctx)
	if err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database",
		"pool_max_conns", health.MaxConns, "response_time_ms", health.ResponseTime)

	// 2. Initialize Redis client
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379")
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to Redis")

	// 3. Wire components
	st := store.New(dbClient.Pool())
	flowLock := lock.New(rdb)
	publisher := queue.NewPublisher(rdb)

	proc, err := processor.New(st, publisher)
	if err != nil {
		slog.Error("Failed to initialize step processor", "error", err)
		os.Exit(1)
	}

	eng := engine.New(st, flowLock, proc)

	// 4. Ensure the consumer group exists
	consumer := queue.NewConsumer(rdb, eng)
	if err := consumer.EnsureGroup(ctx); err != nil {
		slog.Error("Failed to create consumer group", "error", err)
		os.Exit(1)
	}

	// 5. Startup recovery: re-schedule any RUNNING executions
	eng.Recover(ctx)

	// 6. Start the consumer loop
	consumer.Start(ctx)
	slog.Info("Agentic core engine started", "stream", queue.IncomingStream)

	// 7. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// 8. Graceful shutdown: stop reading, let deferred closes run. In-flight
	// step timers die with the process; recovery resumes them on next boot.
	consumer.Stop()
	slog.Info("Shutdown complete")
}
