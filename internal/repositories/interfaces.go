package repositories

import (
	"context"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// DemandRepository is a source of forecast demand. forecastID selects one forecast
// when the store holds several; file sources ignore it.
type DemandRepository interface {
	LoadDemand(ctx context.Context, forecastID string) (*models.DemandTable, error)
	SaveDemand(ctx context.Context, forecastID string, demand *models.DemandTable) error
}

type AllocationRepository interface {
	SaveReport(ctx context.Context, report *models.SolutionReport) error
	GetReport(ctx context.Context, runID string) (*models.SolutionReport, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}
