package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

const (
	roundingEps = 1e-9
	demandEps   = 1e-9
)

// Interpret turns a relaxed solve result into integer driver counts and a costed
// report. It is a pure function of its inputs.
//
// Drivers are rounded up to cover the relaxed served amount, then clamped to the
// per-cell maximum. If a slot then exceeds its fleet, drivers are removed one at a
// time from the cell losing the least served demand (ties by zone) until it fits.
func Interpret(result *SolveResult, demand *models.DemandTable, cfg models.CapacityConfig) (*models.SolutionReport, error) {
	if result == nil {
		return nil, &InterpretationError{Reason: "no solve result"}
	}
	if result.Status == models.StatusInfeasible {
		var err error
		if result.Infeasible != nil {
			err = result.Infeasible
		}
		return nil, &InterpretationError{Reason: "model is infeasible", Err: err}
	}
	if demand == nil {
		return nil, &InterpretationError{Reason: "no demand table"}
	}

	present := make(map[models.Cell]struct{}, len(result.Values))
	for _, v := range result.Values {
		if _, dup := present[v.Cell]; dup {
			return nil, &InterpretationError{Reason: fmt.Sprintf("duplicate result for %s", v.Cell)}
		}
		if !finiteNonNegative(v.Drivers) || !finiteNonNegative(v.Served) || !finiteNonNegative(v.Shortfall) {
			return nil, &InterpretationError{Reason: fmt.Sprintf("invalid values for %s", v.Cell)}
		}
		present[v.Cell] = struct{}{}
	}
	for _, c := range demand.Cells() {
		if _, ok := present[c]; !ok {
			return nil, &InterpretationError{Reason: fmt.Sprintf("result is missing demand cell %s", c)}
		}
	}

	values := append([]CellSolution(nil), result.Values...)
	sort.SliceStable(values, func(i, j int) bool { return values[i].Cell.Less(values[j].Cell) })

	maxPer, hasMax := cfg.MaxDrivers()
	maxInt := 0
	if hasMax {
		maxInt = int(math.Floor(maxPer + roundingEps))
	}

	report := &models.SolutionReport{
		Status:           result.Status,
		Solver:           result.Solver,
		Degraded:         result.Degraded,
		Warnings:         append([]string(nil), result.Warnings...),
		Rows:             make([]models.AllocationDecision, 0, len(values)),
		RelaxedObjective: result.ObjectiveValue,
	}

	for start := 0; start < len(values); {
		end := start
		for end < len(values) && values[end].Cell.Slot == values[start].Cell.Slot {
			end++
		}

		rows := make([]models.AllocationDecision, 0, end-start)
		relaxedServed := 0.0
		for _, v := range values[start:end] {
			thr := cfg.Throughput(v.Cell.Zone, v.Cell.Slot)
			if !(thr > 0) || math.IsInf(thr, 0) {
				return nil, &InterpretationError{Reason: fmt.Sprintf("non-positive throughput for %s", v.Cell)}
			}
			d := int(math.Ceil(v.Served/thr - roundingEps))
			if d < 0 {
				d = 0
			}
			if hasMax && d > maxInt {
				d = maxInt
			}
			rows = append(rows, models.AllocationDecision{
				Zone:           v.Cell.Zone,
				Slot:           v.Cell.Slot,
				Demand:         demand.Demand(v.Cell.Zone, v.Cell.Slot),
				RelaxedDrivers: v.Drivers,
				Drivers:        d,
				Throughput:     thr,
			})
			relaxedServed += v.Served
		}

		if fleet, ok := cfg.FleetSize(values[start].Cell.Slot); ok {
			trimToFleet(rows, int(math.Floor(fleet+roundingEps)))
		}

		slotServed := 0.0
		for i := range rows {
			settle(&rows[i])
			slotServed += rows[i].Served
		}
		if slotServed < relaxedServed-1e-6 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("slot %d: integer rounding serves %.3f less than the relaxed solution", values[start].Cell.Slot, relaxedServed-slotServed))
		}

		report.Rows = append(report.Rows, rows...)
		start = end
	}

	for _, r := range report.Rows {
		report.TotalDemand += r.Demand
		report.TotalServed += r.Served
		report.TotalShortfall += r.Shortfall
		report.DriverHours += float64(r.Drivers)
	}
	report.DriverCost = report.DriverHours * cfg.CostPerDriverHour
	report.PenaltyCost = report.TotalShortfall * cfg.LatePenaltyPerUnit
	report.TotalCost = report.DriverCost + report.PenaltyCost
	report.OnTimeRate = models.OnTimeRate(report.TotalShortfall, report.TotalDemand)

	if report.Status == models.StatusSuboptimal {
		report.Warnings = append(report.Warnings, "solution is not proven optimal")
	}

	return report, nil
}

// trimToFleet removes drivers until the slot total is within fleet.
func trimToFleet(rows []models.AllocationDecision, fleet int) {
	total := 0
	for _, r := range rows {
		total += r.Drivers
	}
	for total > fleet {
		best := -1
		bestLoss := math.Inf(1)
		for i, r := range rows {
			if r.Drivers == 0 {
				continue
			}
			loss := servedBy(r.Drivers, r) - servedBy(r.Drivers-1, r)
			if loss < bestLoss || (loss == bestLoss && r.Zone < rows[best].Zone) {
				best, bestLoss = i, loss
			}
		}
		if best < 0 {
			return
		}
		rows[best].Drivers--
		total--
	}
}

func servedBy(drivers int, r models.AllocationDecision) float64 {
	return math.Min(r.Demand, float64(drivers)*r.Throughput)
}

func settle(r *models.AllocationDecision) {
	capacity := float64(r.Drivers) * r.Throughput
	r.Served = math.Min(r.Demand, capacity)
	r.Shortfall = r.Demand - r.Served
	r.Utilization = math.Min(1, capacity/math.Max(r.Demand, demandEps))
	if capacity > 0 {
		r.CapacityUsage = r.Served / capacity
	}
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
