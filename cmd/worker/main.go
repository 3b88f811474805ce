// The worker process consumes collector tasks from the asynq broker:
// channel resolution jobs and run finalization attempts.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"ytcollector/internal/clock"
	ytcfg "ytcollector/internal/config"
	"ytcollector/internal/finalize"
	"ytcollector/internal/limiter"
	"ytcollector/internal/lock"
	"ytcollector/internal/logger"
	"ytcollector/internal/queue"
	"ytcollector/internal/resolver"
	"ytcollector/internal/state"
	"ytcollector/internal/worker"
	"ytcollector/internal/yt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := ytcfg.Load()
	if err != nil {
		if errors.Is(err, ytcfg.ErrNoAPIKeys) {
			return fmt.Errorf("fatal configuration error: %w", err)
		}
		return err
	}

	log, err := logger.NewComponent("worker")
	if err != nil {
		return err
	}
	defer log.Sync()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisOpt.PoolSize = cfg.RedisMaxConnections
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	clk := clock.New()
	rotator, err := yt.NewKeyRotator(cfg.APIKeys, cfg.KeyCooldown, clk, log)
	if err != nil {
		return err
	}

	apiClient := yt.NewClient(rotator, limiter.New(rdb, clk, log), clk, yt.ClientOptions{
		BaseURL:        cfg.APIBaseURL,
		ThrottleMax:    cfg.ThrottleMaxRequests,
		ThrottlePeriod: cfg.ThrottlePeriod,
		Logger:         log,
	})

	store := state.NewMemory()
	finalizer := finalize.New(store, lock.New(rdb), clk, log)

	enqueuer, err := queue.NewAsynqEnqueuer(cfg.BrokerURL, cfg.HardTimeLimit, log)
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	handler := worker.NewHandler(
		store,
		resolver.New(apiClient, log),
		finalizer,
		enqueuer,
		clk,
		log,
		cfg.SoftTimeLimit,
	)

	brokerOpt, err := asynq.ParseRedisURI(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse BROKER_URL: %w", err)
	}
	srv := asynq.NewServer(brokerOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})

	log.Info("worker starting",
		logger.F("concurrency", cfg.WorkerConcurrency),
		logger.F("api_keys", len(cfg.APIKeys)))
	return srv.Run(handler.Mux())
}
