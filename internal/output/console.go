package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// ConsoleOutput prints reports as tables. Raw events, when written directly, are
// printed one per line with their topic.
type ConsoleOutput struct {
	w io.Writer
}

func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) WriteMessage(topic string, msg []byte) error {
	if _, err := fmt.Fprintf(c.w, "[%s] %s\n", topic, msg); err != nil {
		return fmt.Errorf("failed to write to console: %w", err)
	}
	return nil
}

func (c *ConsoleOutput) WriteReport(report *models.SolutionReport) error {
	return RenderReport(c.w, report)
}

func (c *ConsoleOutput) Close() error { return nil }

// RenderReport writes the allocation table, the per-zone summary and the totals.
func RenderReport(w io.Writer, report *models.SolutionReport) error {
	degraded := ""
	if report.Degraded {
		degraded = " (degraded)"
	}
	fmt.Fprintf(w, "run %s  scenario %s  status %s  solver %s%s\n",
		report.RunID, report.Scenario, report.Status, report.Solver, degraded)
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ZONE\tSLOT\tDEMAND\tDRIVERS\tSERVED\tSHORTFALL\tUTIL\t")
	for _, r := range report.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%d\t%.2f\t%.2f\t%.0f%%\t\n",
			r.Zone, r.Slot, r.Demand, r.Drivers, r.Served, r.Shortfall, r.Utilization*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ZONE\tDEMAND\tSERVED\tSHORTFALL\tDRIVER-HOURS\tON-TIME\t")
	for _, s := range report.ZoneSummaries() {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.0f\t%.1f%%\t\n",
			s.Zone, s.Demand, s.Served, s.Shortfall, s.DriverHours, s.OnTimeRate*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	_, err := fmt.Fprintf(w,
		"demand %.2f  served %.2f  shortfall %.2f  driver-hours %.0f\n"+
			"cost %.2f = drivers %.2f + penalty %.2f  (relaxed %.2f)  on-time %.1f%%\n",
		report.TotalDemand, report.TotalServed, report.TotalShortfall, report.DriverHours,
		report.TotalCost, report.DriverCost, report.PenaltyCost, report.RelaxedObjective,
		report.OnTimeRate*100)
	return err
}
