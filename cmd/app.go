package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chrisdamba/fleetalloc/internal/factories"
	"github.com/chrisdamba/fleetalloc/internal/forecast"
	"github.com/chrisdamba/fleetalloc/internal/logging"
	"github.com/chrisdamba/fleetalloc/internal/models"
	"github.com/chrisdamba/fleetalloc/internal/optimizer"
	"github.com/chrisdamba/fleetalloc/internal/repositories"
	"github.com/chrisdamba/fleetalloc/internal/repositories/csvfile"
	"github.com/chrisdamba/fleetalloc/internal/repositories/postgres"
)

// app carries what every command needs after config is loaded.
type app struct {
	cfg    *models.Config
	logger *zap.Logger
}

func setup(cmd *cobra.Command) (*app, error) {
	if err := godotenv.Load(envFile); err != nil && !(envFile == ".env" && errors.Is(err, fs.ErrNotExist)) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := models.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// applyFlags copies flags the user set explicitly over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *models.Config) error {
	flags := cmd.Flags()
	changed := flags.Changed
	var err error
	get := func(f func() error) {
		if err == nil {
			err = f()
		}
	}

	if changed("seed") {
		get(func() (e error) { cfg.Seed, e = flags.GetInt("seed"); return })
	}
	if changed("zones") {
		get(func() (e error) { cfg.Zones, e = flags.GetInt("zones"); return })
	}
	if changed("horizon") {
		get(func() (e error) { cfg.HorizonHours, e = flags.GetInt("horizon"); return })
	}
	if changed("history-days") {
		get(func() (e error) { cfg.HistoryDays, e = flags.GetInt("history-days"); return })
	}
	if changed("start-date") {
		get(func() error {
			s, e := flags.GetString("start-date")
			if e != nil {
				return e
			}
			t, e := time.Parse(time.RFC3339, s)
			if e != nil {
				return fmt.Errorf("--start-date: %w", e)
			}
			cfg.StartDate = t
			return nil
		})
	}
	if changed("demand-source") {
		get(func() (e error) { cfg.Demand.Source, e = flags.GetString("demand-source"); return })
	}
	if changed("demand-file") {
		get(func() (e error) { cfg.Demand.File, e = flags.GetString("demand-file"); return })
		if !changed("demand-source") {
			cfg.Demand.Source = models.DemandSourceCSV
		}
	}
	if changed("forecast-id") {
		get(func() (e error) { cfg.Demand.ForecastID, e = flags.GetString("forecast-id"); return })
	}
	if changed("full-grid") {
		get(func() (e error) { cfg.Demand.FullGrid, e = flags.GetBool("full-grid"); return })
	}
	if changed("solver") {
		get(func() (e error) { cfg.Solver.Name, e = flags.GetString("solver"); return })
	}
	if changed("workers") {
		get(func() (e error) { cfg.Solver.Workers, e = flags.GetInt("workers"); return })
	}
	if changed("no-fallback") {
		get(func() error {
			v, e := flags.GetBool("no-fallback")
			cfg.Solver.FallbackToGreedy = !v
			return e
		})
	}
	if changed("time-limit") {
		get(func() error {
			d, e := flags.GetDuration("time-limit")
			cfg.Capacity.SolverTimeLimitSeconds = d.Seconds()
			return e
		})
	}
	if changed("throughput") {
		get(func() (e error) { cfg.Capacity.DriverThroughput, e = flags.GetFloat64("throughput"); return })
	}
	if changed("cost") {
		get(func() (e error) { cfg.Capacity.CostPerDriverHour, e = flags.GetFloat64("cost"); return })
	}
	if changed("penalty") {
		get(func() (e error) { cfg.Capacity.LatePenaltyPerUnit, e = flags.GetFloat64("penalty"); return })
	}
	if changed("max-drivers") {
		get(func() error {
			v, e := flags.GetFloat64("max-drivers")
			cfg.Capacity.MaxDriversPerZoneHour = models.Float64(v)
			return e
		})
	}
	if changed("fleet") {
		get(func() error {
			v, e := flags.GetFloat64("fleet")
			cfg.Capacity.TotalDriversPerHour = models.Float64(v)
			return e
		})
	}
	if changed("output-format") {
		get(func() (e error) { cfg.Output.Format, e = flags.GetString("output-format"); return })
	}
	if changed("output-path") {
		get(func() (e error) { cfg.Output.Path, e = flags.GetString("output-path"); return })
	}
	if changed("kafka-enabled") {
		get(func() (e error) { cfg.Output.KafkaEnabled, e = flags.GetBool("kafka-enabled"); return })
	}
	if changed("kafka-broker-list") {
		get(func() (e error) { cfg.Output.KafkaBrokerList, e = flags.GetString("kafka-broker-list"); return })
	}
	if changed("database-url") {
		get(func() (e error) { cfg.Database.URL, e = flags.GetString("database-url"); return })
	}
	if changed("store") {
		get(func() (e error) { cfg.Database.StoreResult, e = flags.GetBool("store"); return })
	}
	if changed("pushgateway") {
		get(func() (e error) { cfg.Metrics.PushgatewayURL, e = flags.GetString("pushgateway"); return })
	}
	if changed("log-level") {
		get(func() (e error) { cfg.Log.Level, e = flags.GetString("log-level"); return })
	}
	return err
}

// demandInput is the planner input plus what a synthetic source knows about its
// zones.
type demandInput struct {
	table *models.DemandTable
	// zones lists every zone to plan when known; nil means the zones in table.
	zones          []models.Zone
	zoneThroughput map[models.Zone]float64
}

func (a *app) loadDemand(ctx context.Context) (*demandInput, error) {
	cfg := a.cfg
	var repo repositories.DemandRepository

	switch cfg.Demand.Source {
	case models.DemandSourceCSV:
		repo = csvfile.NewDemandFile(cfg.Demand.File)
	case models.DemandSourcePostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		repo = postgres.NewDemandRepository(pool)
	case models.DemandSourceSynthetic:
		return a.syntheticDemand()
	default:
		return nil, fmt.Errorf("unknown demand source %q", cfg.Demand.Source)
	}

	table, err := repo.LoadDemand(ctx, cfg.Demand.ForecastID)
	if err != nil {
		return nil, fmt.Errorf("loading demand: %w", err)
	}
	a.logger.Info("demand loaded",
		zap.String("source", cfg.Demand.Source),
		zap.Int("cells", table.Len()),
		zap.Float64("total", table.Total()))
	return &demandInput{table: table}, nil
}

// syntheticDemand generates an order history for seeded zones, fits the baseline
// forecaster on it and forecasts the planning horizon.
func (a *app) syntheticDemand() (*demandInput, error) {
	cfg := a.cfg
	zones := factories.NewZoneFactory(int64(cfg.Seed)).CreateZones(cfg.Zones)
	ids := factories.ZoneIDs(zones)

	start := cfg.StartDate
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24 * time.Hour)
	}
	history := forecast.NewGenerator(ids, start.AddDate(0, 0, -cfg.HistoryDays), cfg.HistoryDays, uint64(cfg.Seed)).Generate()

	baseline, err := forecast.Fit(history)
	if err != nil {
		return nil, fmt.Errorf("fitting forecaster: %w", err)
	}
	table, err := baseline.Forecast(ids, start, cfg.HorizonHours)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int("zones", len(ids)),
		zap.Int("history_hours", len(history)/max(len(ids), 1)),
		zap.Float64("historical_on_time_rate", forecast.OnTimeRate(history)),
		zap.Float64("total_demand", table.Total()),
	}
	if mae, err := forecast.Evaluate(history, 0.8); err == nil {
		fields = append(fields, zap.Float64("holdout_mae", mae))
	}
	a.logger.Info("synthetic demand forecast", fields...)

	return &demandInput{
		table:          table,
		zones:          ids,
		zoneThroughput: factories.ClusterThroughput(zones, cfg.Capacity.DriverThroughput),
	}, nil
}

// capacity merges cluster throughput under the configured zone overrides.
func (a *app) capacity(in *demandInput) models.CapacityConfig {
	c := a.cfg.CapacityConfig()
	if len(in.zoneThroughput) == 0 {
		return c
	}
	merged := make(map[models.Zone]float64, len(in.zoneThroughput)+len(c.ZoneThroughput))
	for z, v := range in.zoneThroughput {
		merged[z] = v
	}
	for z, v := range c.ZoneThroughput {
		merged[z] = v
	}
	c.ZoneThroughput = merged
	return c
}

func (a *app) buildOptions(in *demandInput) []optimizer.BuildOption {
	if !a.cfg.Demand.FullGrid {
		return nil
	}
	zones := in.zones
	if zones == nil {
		zones = in.table.Zones()
	}
	return []optimizer.BuildOption{optimizer.WithGrid(zones, a.cfg.HorizonHours)}
}

func (a *app) optimizer() *optimizer.Optimizer {
	var primary optimizer.Solver = optimizer.NewSimplexSolver(a.cfg.Solver.Workers)
	if a.cfg.Solver.Name == models.SolverGreedy {
		primary = optimizer.GreedySolver{}
	}
	var fallback optimizer.Solver
	if a.cfg.Solver.FallbackToGreedy && primary.Name() != models.SolverGreedy {
		fallback = optimizer.GreedySolver{}
	}
	return optimizer.New(primary, fallback, a.logger)
}
