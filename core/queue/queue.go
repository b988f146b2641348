package queue

import (
	"context"
	"math"
	"time"

	"calendar-sync/core/logger"

	"github.com/hibiken/asynq"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

func (c Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func NewClient(cfg Config) *asynq.Client {
	return asynq.NewClient(cfg.redisOpt())
}

// NewServer builds the worker server. Failed tasks are retried with RetryDelay.
func NewServer(cfg Config) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(cfg.redisOpt(), asynq.Config{
		Concurrency:    concurrency,
		Queues:         cfg.Queues,
		RetryDelayFunc: RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("Queue:Task:Failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "error", err)
		}),
	})
}

func NewScheduler(cfg Config) *asynq.Scheduler {
	return asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
		Location: time.UTC,
	})
}

// RetryDelay doubles from 30s per attempt and caps at one hour.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 16 {
		return retryMaxDelay
	}
	d := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(n)))
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}
