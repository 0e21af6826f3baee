package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chrisdamba/fleetalloc/internal/metrics"
	"github.com/chrisdamba/fleetalloc/internal/models"
	"github.com/chrisdamba/fleetalloc/internal/optimizer"
	"github.com/chrisdamba/fleetalloc/internal/output"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Plans the same demand under several cost and capacity scenarios",
	Long: `sweep runs one allocation per scenario and compares them. Scenarios come from a
YAML file (--scenarios) or from --penalties / --fleets lists. Each scenario's report
is written to the configured output; a comparison table is printed at the end.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync() //nolint:errcheck

		scenarios, err := sweepScenarios(cmd)
		if err != nil {
			return err
		}
		parallel, _ := cmd.Flags().GetInt("parallel")
		return a.sweep(ctx, scenarios, parallel, cmd.OutOrStdout())
	},
}

func sweepScenarios(cmd *cobra.Command) ([]optimizer.Scenario, error) {
	flags := cmd.Flags()
	var scenarios []optimizer.Scenario

	if file, _ := flags.GetString("scenarios"); file != "" {
		loaded, err := optimizer.LoadScenarioFile(file)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, loaded...)
	}
	if penalties, _ := flags.GetFloat64Slice("penalties"); len(penalties) > 0 {
		scenarios = append(scenarios, optimizer.PenaltyScenarios(penalties)...)
	}
	if fleets, _ := flags.GetFloat64Slice("fleets"); len(fleets) > 0 {
		scenarios = append(scenarios, optimizer.FleetScenarios(fleets)...)
	}
	if len(scenarios) == 0 {
		return nil, errors.New("sweep: no scenarios; use --scenarios, --penalties or --fleets")
	}
	return scenarios, nil
}

func (a *app) sweep(ctx context.Context, scenarios []optimizer.Scenario, parallel int, w io.Writer) error {
	metrics.Register()
	defer a.pushMetrics()

	in, err := a.loadDemand(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(scenarios),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("sweeping scenarios"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	results := a.optimizer().Sweep(ctx, in.table, a.capacity(in), scenarios, parallel,
		func(done, _ int) { _ = bar.Set(done) }, a.buildOptions(in)...)
	_ = bar.Finish()

	var reports []*models.SolutionReport
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			a.logger.Error("scenario failed", zap.String("scenario", r.Scenario.Name), zap.Error(r.Err))
			continue
		}
		reports = append(reports, r.Report)
	}

	// console output would print every table; the comparison below replaces it
	if a.cfg.Output.Format != models.OutputFormatConsole || a.cfg.Output.KafkaEnabled {
		dest, err := output.New(ctx, a.cfg)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, r := range reports {
			if err := output.Publish(dest, output.TopicsFor(a.cfg), r, now); err != nil {
				dest.Close()
				return err
			}
		}
		if err := dest.Close(); err != nil {
			return fmt.Errorf("closing output: %w", err)
		}
	}
	if a.cfg.Database.StoreResult {
		if err := a.storeReports(ctx, reports...); err != nil {
			return err
		}
	}

	if err := renderSweep(w, results); err != nil {
		return err
	}
	if failed == len(results) {
		return fmt.Errorf("sweep: all %d scenarios failed", failed)
	}
	return nil
}

func renderSweep(w io.Writer, results []optimizer.SweepResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tDRIVER-HOURS\tDRIVER COST\tPENALTY\tTOTAL COST\tSHORTFALL\tON-TIME")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\tERROR\t-\t-\t-\t-\t-\t%v\n", r.Scenario.Name, r.Err)
			continue
		}
		rep := r.Report
		status := string(rep.Status)
		if rep.Degraded {
			status += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f%%\n",
			r.Scenario.Name, status, rep.DriverHours, rep.DriverCost, rep.PenaltyCost,
			rep.TotalCost, rep.TotalShortfall, rep.OnTimeRate*100)
	}
	return tw.Flush()
}

func init() {
	sweepCmd.Flags().String("scenarios", "", "YAML scenario file")
	sweepCmd.Flags().Float64Slice("penalties", nil, "late penalties to sweep, e.g. 25,50,100")
	sweepCmd.Flags().Float64Slice("fleets", nil, "fleet sizes per hour to sweep")
	sweepCmd.Flags().Int("parallel", 2, "scenarios planned at once")
	addPlanningFlags(sweepCmd)
	addOutputFlags(sweepCmd)
	rootCmd.AddCommand(sweepCmd)
}
