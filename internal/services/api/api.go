// Package api serves the relay's HTTP surface: agent registration and
// directory, message submission, and status lookups.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Chronic700/Agent-Connect/internal/logging"
	"github.com/Chronic700/Agent-Connect/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Service runs the HTTP server as a supervised worker.
type Service struct {
	server *http.Server
	logger *logging.Logger
}

func NewService(port int, handler http.Handler, logger *logging.Logger) *Service {
	return &Service{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		},
		logger: logger,
	}
}

func (s *Service) Name() string {
	return "api"
}

// Run serves until the context is canceled, then drains in-flight requests.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Ctx(ctx).Info("api server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

var _ worker.Worker = (*Service)(nil)
