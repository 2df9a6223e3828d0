package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
)

// cleaner é qualquer store em memória que precisa de limpeza periódica.
type cleaner func(now time.Time)

// redisHealth registra a transição saudável/indisponível do Redis.
type redisHealth struct {
	rdb     redis.UniversalClient
	timeout time.Duration
	logger  *slog.Logger
	down    atomic.Bool
}

func (h *redisHealth) check() {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := h.rdb.Ping(ctx).Err()
	switch {
	case err != nil && !h.down.Swap(true):
		h.logger.Error("redis unreachable: guarded endpoints are failing closed", "error", err)
	case err != nil:
		h.logger.Debug("redis still unreachable", "error", err)
	case h.down.Swap(false):
		h.logger.Info("redis reachable again")
	}
}

// startJobs agenda a limpeza dos stores locais e o health check do Redis.
func startJobs(cfg config, cleaners []cleaner, health *redisHealth, logger *slog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if len(cleaners) > 0 {
		_, err = s.NewJob(
			gocron.DurationJob(cfg.CleanupInterval),
			gocron.NewTask(func() {
				now := time.Now()
				for _, c := range cleaners {
					c(now)
				}
			}),
			gocron.WithName("cleanup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if health != nil {
		_, err = s.NewJob(
			gocron.DurationJob(cfg.HealthInterval),
			gocron.NewTask(health.check),
			gocron.WithName("redis-health"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	s.Start()
	logger.Debug("background jobs started", "jobs", len(s.Jobs()))
	return s, nil
}
