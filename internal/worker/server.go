package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/castmix/internal/config"
)

// Serve processes tasks with h until ctx is cancelled, then shuts the server
// down and waits for running tasks.
func Serve(ctx context.Context, rdb redis.UniversalClient, cfg config.QueueConfig, h *Handler) error {
	srv := asynq.NewServerFromRedisClient(rdb, asynq.Config{
		Concurrency: cfg.Concurrency,
		Logger:      NewLogger(slog.Default()),
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			retries, _ := asynq.GetRetryCount(ctx)
			slog.ErrorContext(ctx, "episode task failed", "task_id", id, "type", t.Type(), "retry", retries, "err", err)
		}),
	})
	if err := srv.Start(h.Mux()); err != nil {
		return err
	}
	slog.Info("worker started", "concurrency", cfg.Concurrency, "redis", cfg.RedisAddr)
	<-ctx.Done()
	srv.Shutdown()
	slog.Info("worker stopped")
	return nil
}
