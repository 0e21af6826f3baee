package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucsky/cuid"
	"go.uber.org/zap"

	"github.com/chrisdamba/fleetalloc/internal/metrics"
	"github.com/chrisdamba/fleetalloc/internal/models"
)

// Optimizer runs the build, solve and interpret stages for one scenario. It holds
// no per-run state and may be shared by concurrent runs.
type Optimizer struct {
	Solver Solver
	// Fallback is used when Solver reports SolverUnavailableError. Nil disables it.
	Fallback Solver
	Logger   *zap.Logger
}

func New(solver Solver, fallback Solver, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{Solver: solver, Fallback: fallback, Logger: logger}
}

// Run plans one scenario. A failed run returns no report.
func (o *Optimizer) Run(ctx context.Context, demand *models.DemandTable, cfg models.CapacityConfig, opts ...BuildOption) (*models.SolutionReport, error) {
	return o.RunScenario(ctx, "default", demand, cfg, opts...)
}

func (o *Optimizer) RunScenario(ctx context.Context, scenario string, demand *models.DemandTable, cfg models.CapacityConfig, opts ...BuildOption) (*models.SolutionReport, error) {
	log := o.logger().With(zap.String("scenario", scenario))

	model, err := Build(demand, cfg, opts...)
	if err != nil {
		metrics.RunErrors.WithLabelValues("build").Inc()
		return nil, fmt.Errorf("optimizer: build: %w", err)
	}
	log.Debug("model built", zap.Int("slots", len(model.Slots)), zap.Int("cells", model.NumCells()))

	solver := o.Solver
	if solver == nil {
		solver = NewSimplexSolver(1)
	}

	result, err := solver.Solve(ctx, model, cfg.SolverTimeLimit)
	var unavailable *SolverUnavailableError
	if err != nil && errors.As(err, &unavailable) && o.Fallback != nil {
		log.Warn("solver unavailable, falling back",
			zap.String("solver", solver.Name()),
			zap.String("fallback", o.Fallback.Name()),
			zap.Error(err))
		metrics.Fallbacks.Inc()
		solver = o.Fallback
		result, err = solver.Solve(ctx, model, cfg.SolverTimeLimit)
		if result != nil {
			result.Degraded = true
			result.Warnings = append(result.Warnings, "primary solver unavailable: "+unavailable.Error())
		}
	}
	if err != nil {
		metrics.RunErrors.WithLabelValues("solve").Inc()
		return nil, fmt.Errorf("optimizer: solve: %w", err)
	}
	metrics.ObserveSolve(result.Solver, result.Elapsed)

	report, err := Interpret(result, demand, cfg)
	if err != nil {
		metrics.RunErrors.WithLabelValues("interpret").Inc()
		log.Error("interpretation failed", zap.String("status", string(result.Status)), zap.Error(err))
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	report.RunID = cuid.New()
	report.Scenario = scenario

	metrics.Runs.WithLabelValues(report.Solver, string(report.Status)).Inc()
	metrics.TotalCost.WithLabelValues(scenario).Set(report.TotalCost)
	metrics.OnTimeRate.WithLabelValues(scenario).Set(report.OnTimeRate)

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("solver", report.Solver),
		zap.String("status", string(report.Status)),
		zap.Duration("elapsed", result.Elapsed),
		zap.Float64("total_cost", report.TotalCost),
		zap.Float64("on_time_rate", report.OnTimeRate),
	}
	if report.Optimal() {
		log.Info("allocation planned", fields...)
	} else {
		log.Warn("allocation planned without optimality proof", append(fields, zap.Strings("warnings", report.Warnings))...)
	}
	return report, nil
}

func (o *Optimizer) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
