package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chrisdamba/fleetalloc/internal/metrics"
	"github.com/chrisdamba/fleetalloc/internal/models"
	"github.com/chrisdamba/fleetalloc/internal/output"
	"github.com/chrisdamba/fleetalloc/internal/repositories/postgres"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "fleetalloc",
	Short: "Plans driver allocation across delivery zones and hours",
	Long: `fleetalloc turns a per-zone, per-hour demand forecast into driver counts that
minimize labor cost plus late-delivery penalties under throughput and fleet limits.

Demand comes from a CSV file, a PostgreSQL forecast table, or a synthetic order
history fed through a seasonal baseline forecaster. The allocation table and run
summary go to the console, CSV, JSON, Parquet (local or S3), Kafka or PostgreSQL.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync() //nolint:errcheck
		return a.optimize(ctx)
	},
}

func (a *app) optimize(ctx context.Context) error {
	metrics.Register()
	defer a.pushMetrics()

	in, err := a.loadDemand(ctx)
	if err != nil {
		return err
	}

	report, err := a.optimizer().Run(ctx, in.table, a.capacity(in), a.buildOptions(in)...)
	if err != nil {
		return err
	}

	dest, err := output.New(ctx, a.cfg)
	if err != nil {
		return err
	}
	if err := output.Publish(dest, output.TopicsFor(a.cfg), report, time.Now()); err != nil {
		dest.Close()
		return err
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	if a.cfg.Database.StoreResult {
		if err := a.storeReports(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) storeReports(ctx context.Context, reports ...*models.SolutionReport) error {
	pool, err := postgres.Connect(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewAllocationRepository(pool)
	for _, r := range reports {
		if err := repo.SaveReport(ctx, r); err != nil {
			return err
		}
		a.logger.Info("allocation run stored", zap.String("run_id", r.RunID))
	}
	return nil
}

func (a *app) pushMetrics() {
	if err := metrics.Push(a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("pushing metrics failed", zap.String("url", a.cfg.Metrics.PushgatewayURL), zap.Error(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fleetalloc.yaml or ./examples/fleetalloc.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	addPlanningFlags(rootCmd)
	addOutputFlags(rootCmd)
}

// addPlanningFlags registers the demand, capacity and solver flags shared by the
// optimize and sweep commands.
func addPlanningFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("seed", 42, "seed for synthetic zones and demand")
	f.Int("zones", 8, "number of synthetic zones")
	f.Int("horizon", 24, "planning horizon in hours")
	f.Int("history-days", 28, "days of synthetic order history")
	f.String("start-date", "", "first planned hour (RFC3339)")
	f.String("demand-source", models.DemandSourceSynthetic, "demand source (csv, postgres, synthetic)")
	f.String("demand-file", "", "demand CSV file; implies --demand-source=csv")
	f.String("forecast-id", "", "forecast id for the postgres demand source")
	f.Bool("full-grid", false, "plan every zone and hour of the horizon, not only the demand rows")
	f.String("solver", models.SolverSimplex, "solver (simplex, greedy)")
	f.Int("workers", 4, "parallel slot solves")
	f.Bool("no-fallback", false, "fail instead of falling back to the greedy solver")
	f.Duration("time-limit", 30*time.Second, "solver time limit")
	f.Float64("throughput", 10, "deliveries per driver-hour")
	f.Float64("cost", 20, "cost per driver-hour")
	f.Float64("penalty", 100, "penalty per unit of unserved demand")
	f.Float64("max-drivers", 0, "maximum drivers per zone and hour")
	f.Float64("fleet", 0, "drivers available per hour across all zones")
	f.String("database-url", "", "PostgreSQL connection URL")
	f.String("pushgateway", "", "Prometheus Pushgateway URL")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("output-format", models.OutputFormatConsole, "output format (console, csv, json, parquet)")
	f.String("output-path", "", "base directory for file outputs")
	f.Bool("kafka-enabled", false, "publish to Kafka instead of files")
	f.String("kafka-broker-list", "localhost:9092", "comma separated Kafka brokers")
	f.Bool("store", false, "store the run in PostgreSQL")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
