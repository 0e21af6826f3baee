package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

type DemandRepository struct {
	pool *pgxpool.Pool
}

func NewDemandRepository(pool *pgxpool.Pool) *DemandRepository {
	return &DemandRepository{pool: pool}
}

func (r *DemandRepository) LoadDemand(ctx context.Context, forecastID string) (*models.DemandTable, error) {
	query := `
        SELECT zone_id, slot, expected_demand, variance
        FROM demand_forecasts
        WHERE forecast_id = $1
        ORDER BY slot, zone_id`

	rows, err := r.pool.Query(ctx, query, forecastID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load demand %q: %w", forecastID, err)
	}
	defer rows.Close()

	var entries []models.DemandEntry
	for rows.Next() {
		var (
			zone string
			slot int
			e    models.DemandEntry
		)
		if err := rows.Scan(&zone, &slot, &e.Expected, &e.Variance); err != nil {
			return nil, fmt.Errorf("postgres: scan demand: %w", err)
		}
		e.Zone = models.Zone(zone)
		e.Slot = models.TimeSlot(slot)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load demand %q: %w", forecastID, err)
	}
	return models.NewDemandTable(entries)
}

// SaveDemand replaces the stored forecast with the table's entries.
func (r *DemandRepository) SaveDemand(ctx context.Context, forecastID string, demand *models.DemandTable) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM demand_forecasts WHERE forecast_id = $1", forecastID); err != nil {
		return fmt.Errorf("postgres: clear forecast %q: %w", forecastID, err)
	}

	entries := demand.Entries()
	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"demand_forecasts"},
		[]string{"forecast_id", "zone_id", "slot", "expected_demand", "variance"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]interface{}, error) {
			return []interface{}{
				forecastID,
				string(entries[i].Zone),
				int32(entries[i].Slot),
				entries[i].Expected,
				entries[i].Variance,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy forecast %q: %w", forecastID, err)
	}
	return tx.Commit(ctx)
}
