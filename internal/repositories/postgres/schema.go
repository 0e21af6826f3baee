package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS demand_forecasts (
    forecast_id     TEXT NOT NULL,
    zone_id         TEXT NOT NULL,
    slot            INTEGER NOT NULL CHECK (slot >= 0),
    expected_demand DOUBLE PRECISION NOT NULL CHECK (expected_demand >= 0),
    variance        DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (forecast_id, zone_id, slot)
);

CREATE TABLE IF NOT EXISTS allocation_runs (
    run_id            TEXT PRIMARY KEY,
    scenario          TEXT NOT NULL,
    status            TEXT NOT NULL,
    solver            TEXT NOT NULL,
    degraded          BOOLEAN NOT NULL,
    warnings          TEXT[] NOT NULL DEFAULT '{}',
    total_demand      DOUBLE PRECISION NOT NULL,
    total_served      DOUBLE PRECISION NOT NULL,
    total_shortfall   DOUBLE PRECISION NOT NULL,
    driver_hours      DOUBLE PRECISION NOT NULL,
    driver_cost       DOUBLE PRECISION NOT NULL,
    penalty_cost      DOUBLE PRECISION NOT NULL,
    total_cost        DOUBLE PRECISION NOT NULL,
    relaxed_objective DOUBLE PRECISION NOT NULL,
    on_time_rate      DOUBLE PRECISION NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS allocation_rows (
    run_id           TEXT NOT NULL REFERENCES allocation_runs (run_id) ON DELETE CASCADE,
    zone_id          TEXT NOT NULL,
    slot             INTEGER NOT NULL,
    demand           DOUBLE PRECISION NOT NULL,
    relaxed_drivers  DOUBLE PRECISION NOT NULL,
    drivers_assigned INTEGER NOT NULL,
    throughput       DOUBLE PRECISION NOT NULL,
    served_demand    DOUBLE PRECISION NOT NULL,
    shortfall        DOUBLE PRECISION NOT NULL,
    utilization      DOUBLE PRECISION NOT NULL,
    capacity_usage   DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, zone_id, slot)
);
`

// Connect opens a pool and makes sure the planner tables exist.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
