package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chrisdamba/fleetalloc/internal/repositories"
	"github.com/chrisdamba/fleetalloc/internal/repositories/csvfile"
	"github.com/chrisdamba/fleetalloc/internal/repositories/postgres"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Forecasts synthetic demand and saves it as CSV or a PostgreSQL forecast",
	Long: `generate builds seeded zones and an hourly order history, fits the baseline
forecaster and writes the forecast for the planning horizon. Use --out for a CSV
file (- for stdout) or --forecast-id with --database-url to store it in PostgreSQL.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync() //nolint:errcheck

		in, err := a.syntheticDemand()
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "-" {
			return csvfile.WriteDemand(cmd.OutOrStdout(), in.table)
		}

		var repo repositories.DemandRepository
		switch {
		case out != "":
			repo = csvfile.NewDemandFile(out)
		case a.cfg.Demand.ForecastID != "":
			pool, err := postgres.Connect(ctx, a.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			repo = postgres.NewDemandRepository(pool)
		default:
			return fmt.Errorf("generate: set --out or --forecast-id")
		}

		if err := repo.SaveDemand(ctx, a.cfg.Demand.ForecastID, in.table); err != nil {
			return err
		}
		a.logger.Info("demand saved",
			zap.String("out", out),
			zap.String("forecast_id", a.cfg.Demand.ForecastID),
			zap.Int("cells", in.table.Len()))
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.String("out", "", "CSV file to write, - for stdout")
	f.Int("seed", 42, "seed for synthetic zones and demand")
	f.Int("zones", 8, "number of synthetic zones")
	f.Int("horizon", 24, "forecast horizon in hours")
	f.Int("history-days", 28, "days of synthetic order history")
	f.String("start-date", "", "first forecast hour (RFC3339)")
	f.String("forecast-id", "", "forecast id when saving to PostgreSQL")
	f.String("database-url", "", "PostgreSQL connection URL")
	rootCmd.AddCommand(generateCmd)
}
