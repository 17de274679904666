package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/config"
	"classroll/internal/queue"
	"classroll/internal/report"
	"classroll/internal/store"
	"classroll/internal/worker"
)

// Worker consumes attendance events and keeps ended-session summaries cached.
func main() {
	cfg := config.Load()
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := checkBackends(cfg); err != nil {
		logger.Fatal("unsupported worker configuration", zap.Error(err))
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	att := attendance.NewService(attendance.NewRepository(db.Client), logger.Named("attendance"))

	var cache attendance.SummaryCache
	if cfg.SummaryCacheTTL > 0 {
		cache = report.NewRedisCache(redisClient.Client, cfg.SummaryCacheTTL)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
	worker.New(att, cache, logger.Named("worker")).Run(ctx, messages)
}

// checkBackends rejects setups where this process cannot see what the api
// publishes or stores.
func checkBackends(cfg config.App) error {
	if cfg.QueueBackend == "memory" {
		return errors.New("QUEUE_BACKEND=memory is drained inside the api process; run the worker with the redis queue")
	}
	if cfg.StoreBackend == "memory" {
		return errors.New("STORE_BACKEND=memory lives inside the api process; run the worker against postgres")
	}
	return nil
}
