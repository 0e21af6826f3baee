package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

var ErrRunNotFound = errors.New("postgres: allocation run not found")

type AllocationRepository struct {
	pool *pgxpool.Pool
}

func NewAllocationRepository(pool *pgxpool.Pool) *AllocationRepository {
	return &AllocationRepository{pool: pool}
}

// SaveReport stores the run summary and its rows in one transaction.
func (r *AllocationRepository) SaveReport(ctx context.Context, report *models.SolutionReport) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	warnings := report.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	stmt := `
        INSERT INTO allocation_runs (
            run_id, scenario, status, solver, degraded, warnings,
            total_demand, total_served, total_shortfall, driver_hours,
            driver_cost, penalty_cost, total_cost, relaxed_objective, on_time_rate
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
        )`

	_, err = tx.Exec(ctx, stmt,
		report.RunID,
		report.Scenario,
		string(report.Status),
		report.Solver,
		report.Degraded,
		warnings,
		report.TotalDemand,
		report.TotalServed,
		report.TotalShortfall,
		report.DriverHours,
		report.DriverCost,
		report.PenaltyCost,
		report.TotalCost,
		report.RelaxedObjective,
		report.OnTimeRate,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", report.RunID, err)
	}

	rows := report.Rows
	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"allocation_rows"},
		[]string{
			"run_id", "zone_id", "slot", "demand", "relaxed_drivers",
			"drivers_assigned", "throughput", "served_demand", "shortfall",
			"utilization", "capacity_usage",
		},
		pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			return []interface{}{
				report.RunID,
				string(rows[i].Zone),
				int32(rows[i].Slot),
				rows[i].Demand,
				rows[i].RelaxedDrivers,
				int32(rows[i].Drivers),
				rows[i].Throughput,
				rows[i].Served,
				rows[i].Shortfall,
				rows[i].Utilization,
				rows[i].CapacityUsage,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy rows of run %s: %w", report.RunID, err)
	}

	return tx.Commit(ctx)
}

func (r *AllocationRepository) GetReport(ctx context.Context, runID string) (*models.SolutionReport, error) {
	query := `
        SELECT
            run_id, scenario, status, solver, degraded, warnings,
            total_demand, total_served, total_shortfall, driver_hours,
            driver_cost, penalty_cost, total_cost, relaxed_objective, on_time_rate
        FROM allocation_runs
        WHERE run_id = $1`

	report := &models.SolutionReport{}
	var status string
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&report.RunID,
		&report.Scenario,
		&status,
		&report.Solver,
		&report.Degraded,
		&report.Warnings,
		&report.TotalDemand,
		&report.TotalServed,
		&report.TotalShortfall,
		&report.DriverHours,
		&report.DriverCost,
		&report.PenaltyCost,
		&report.TotalCost,
		&report.RelaxedObjective,
		&report.OnTimeRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get run %s: %w", runID, err)
	}
	report.Status = models.SolveStatus(status)

	rowsQuery := `
        SELECT
            zone_id, slot, demand, relaxed_drivers, drivers_assigned, throughput,
            served_demand, shortfall, utilization, capacity_usage
        FROM allocation_rows
        WHERE run_id = $1
        ORDER BY slot, zone_id`

	rows, err := r.pool.Query(ctx, rowsQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get rows of run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d    models.AllocationDecision
			zone string
			slot int
		)
		err := rows.Scan(
			&zone,
			&slot,
			&d.Demand,
			&d.RelaxedDrivers,
			&d.Drivers,
			&d.Throughput,
			&d.Served,
			&d.Shortfall,
			&d.Utilization,
			&d.CapacityUsage,
		)
		if err != nil {
			return nil, err
		}
		d.Zone = models.Zone(zone)
		d.Slot = models.TimeSlot(slot)
		report.Rows = append(report.Rows, d)
	}
	return report, rows.Err()
}

func (r *AllocationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM allocation_runs").Scan(&count)
	return count, err
}

func (r *AllocationRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, "TRUNCATE TABLE allocation_runs CASCADE")
	return err
}
