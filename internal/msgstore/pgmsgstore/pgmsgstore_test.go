package pgmsgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/drivertest"
	"github.com/Chronic700/Agent-Connect/internal/msgstore/pgmsgstore"
	"github.com/Chronic700/Agent-Connect/internal/util/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

type harness struct {
	pool *pgxpool.Pool
}

func (h *harness) MakeDriver(ctx context.Context) (driver.MessageStore, error) {
	if _, err := h.pool.Exec(ctx, "TRUNCATE messages"); err != nil {
		return nil, fmt.Errorf("truncate messages: %w", err)
	}
	return pgmsgstore.New(h.pool), nil
}

func (h *harness) Close() {
	h.pool.Close()
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	testutil.CheckIntegrationTest(t)
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &harness{pool: pool}, nil
}

func TestConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, newHarness)
}
