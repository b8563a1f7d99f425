package app

import (
	"context"
	"strings"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/config"
	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/migrator"
	"go.uber.org/zap"
)

// runMigration applies pending schema migrations. Several relay nodes may
// start at once; golang-migrate takes a Postgres advisory lock, so losers
// see a lock error, wait, and retry once the winner is done.
func runMigration(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	const (
		maxRetries = 3
		retryDelay = 5 * time.Second
	)

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		m, err := migrator.New(migrator.MigrationOpts{PostgresURL: cfg.PostgresURL})
		if err != nil {
			return err
		}

		version, applied, err := m.Up(ctx, -1)

		sourceErr, dbErr := m.Close(ctx)
		if sourceErr != nil {
			logger.Error("failed to close migrator source", zap.Error(sourceErr))
		}
		if dbErr != nil {
			logger.Error("failed to close migrator database connection", zap.Error(dbErr))
		}

		if err == nil {
			if applied > 0 {
				logger.Info("migrations applied",
					zap.Int("version", version),
					zap.Int("applied", applied))
			} else {
				logger.Info("no migrations applied", zap.Int("version", version))
			}
			return nil
		}

		lastErr = err
		if !isLockRelatedError(err) {
			logger.Error("migration failed", zap.Error(err))
			return err
		}

		if attempt < maxRetries {
			logger.Warn("migration lock conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("retry_delay", retryDelay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		} else {
			logger.Error("migration failed after retries",
				zap.Int("attempts", maxRetries),
				zap.Error(err))
		}
	}

	return lastErr
}

func isLockRelatedError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	lockIndicators := []string{
		"can't acquire lock",
		"try lock failed",
	}
	for _, indicator := range lockIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}
