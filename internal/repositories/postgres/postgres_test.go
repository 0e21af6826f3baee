package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/fleetalloc/internal/models"
	"github.com/chrisdamba/fleetalloc/internal/repositories"
)

var (
	_ repositories.DemandRepository     = (*DemandRepository)(nil)
	_ repositories.AllocationRepository = (*AllocationRepository)(nil)
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("FLEETALLOC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FLEETALLOC_TEST_DATABASE_URL not set")
	}
	pool, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestDemandRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewDemandRepository(pool)

	tbl, err := models.NewDemandTable([]models.DemandEntry{
		{Zone: "A", Slot: 0, Expected: 12, Variance: 3},
		{Zone: "B", Slot: 1, Expected: 4.5},
	})
	require.NoError(t, err)

	require.NoError(t, repo.SaveDemand(ctx, "test-forecast", tbl))
	require.NoError(t, repo.SaveDemand(ctx, "test-forecast", tbl), "saving twice replaces the forecast")

	got, err := repo.LoadDemand(ctx, "test-forecast")
	require.NoError(t, err)
	assert.Equal(t, tbl.Entries(), got.Entries())
}

func TestAllocationRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewAllocationRepository(pool)
	require.NoError(t, repo.DeleteAll(ctx))

	report := &models.SolutionReport{
		RunID:    "run-1",
		Scenario: "default",
		Status:   models.StatusOptimal,
		Solver:   models.SolverSimplex,
		Warnings: []string{},
		Rows: []models.AllocationDecision{
			{Zone: "A", Slot: 0, Demand: 50, RelaxedDrivers: 3, Drivers: 3, Throughput: 10, Served: 30, Shortfall: 20, Utilization: 0.6, CapacityUsage: 1},
		},
		TotalDemand: 50, TotalServed: 30, TotalShortfall: 20, DriverHours: 3,
		DriverCost: 60, PenaltyCost: 2000, TotalCost: 2060, OnTimeRate: 0.6,
	}
	require.NoError(t, repo.SaveReport(ctx, report))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = repo.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
