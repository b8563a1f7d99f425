// Package app wires configuration, stores, and workers into a running
// relay.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	agentdriver "github.com/Chronic700/Agent-Connect/internal/agentstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/agentstore/memagentstore"
	"github.com/Chronic700/Agent-Connect/internal/agentstore/pgagentstore"
	"github.com/Chronic700/Agent-Connect/internal/backoff"
	"github.com/Chronic700/Agent-Connect/internal/config"
	"github.com/Chronic700/Agent-Connect/internal/delivery"
	"github.com/Chronic700/Agent-Connect/internal/dispatch"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	msgdriver "github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/memmsgstore"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/pgmsgstore"
	"github.com/Chronic700/Agent-Connect/internal/presence"
	"github.com/Chronic700/Agent-Connect/internal/redis"
	"github.com/Chronic700/Agent-Connect/internal/retry"
	"github.com/Chronic700/Agent-Connect/internal/services/api"
	"github.com/Chronic700/Agent-Connect/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	config *config.Config
}

func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

func (a *App) Run(ctx context.Context) error {
	return run(ctx, a.config)
}

func run(mainContext context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(logging.WithLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting relay",
		zap.Int("port", cfg.Port),
		zap.Bool("fast_path", cfg.FastPathEnabled),
		zap.Bool("postgres", cfg.PostgresURL != ""))

	ctx, cancel := context.WithCancel(mainContext)
	defer cancel()

	messages, agents, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Presence is advisory. A missing or unreachable Redis degrades the
	// relay to polling, it does not stop it.
	var publisher *presence.Publisher
	var subscriber *presence.Subscriber
	if cfg.FastPathEnabled {
		redisClient, err := redis.New(ctx, cfg.Redis.ToConfig())
		if err != nil {
			logger.Warn("redis unavailable, presence fast path disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			publisher = presence.NewPublisher(redisClient, logger)
			subscriber = presence.NewSubscriber(redisClient, logger)
		}
	}

	dispatcher := dispatch.New(dispatch.WithTimeout(cfg.DeliveryTimeout()))
	policy := retry.Policy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    &backoff.ScheduledBackoff{Schedule: cfg.RetrySchedule()},
	}

	deliveryOpts := []delivery.Option{
		delivery.WithPollInterval(cfg.DeliveryPollInterval()),
	}
	if subscriber != nil {
		deliveryOpts = append(deliveryOpts, delivery.WithPresenceEvents(subscriber.Events()))
	}
	deliveryWorker := delivery.New(messages, agents, dispatcher, policy, logger, deliveryOpts...)

	supervisor := worker.NewSupervisor(logger)
	supervisor.Register(deliveryWorker)
	if subscriber != nil {
		supervisor.Register(subscriber)
	}

	router := api.NewRouter(
		api.RouterConfig{RateLimit: cfg.APIRateLimit},
		logger,
		agents,
		messages,
		publisher,
		supervisor.Health(),
	)
	supervisor.Register(api.NewService(cfg.Port, router, logger))

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	var exitErr error
	select {
	case <-termChan:
		logger.Info("shutdown signal received")
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
	}

	logger.Info("relay shutdown complete")
	return exitErr
}

// buildStores returns the message and agent stores. With a Postgres URL
// configured it migrates the schema and uses Postgres; otherwise everything
// lives in process memory, which suits development and tests.
func buildStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (msgdriver.MessageStore, agentdriver.AgentStore, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Warn("no postgres url configured, using in-memory stores")
		return memmsgstore.New(), memagentstore.New(), func() {}, nil
	}

	if err := runMigration(ctx, cfg, logger); err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("postgres pool initialization failed", zap.Error(err))
		return nil, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("postgres ping failed", zap.Error(err))
		return nil, nil, nil, err
	}

	return pgmsgstore.New(pool), pgagentstore.New(pool), pool.Close, nil
}
