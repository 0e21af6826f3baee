package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// GreedySolver is the degraded mode used when the simplex solver is unavailable.
// It never proves optimality.
//
// Per slot each cell asks for demand/throughput drivers when a driver-hour costs
// less than the penalty it avoids, capped by the per-cell maximum. When the asks
// exceed the fleet they are scaled down proportionally.
type GreedySolver struct{}

func (GreedySolver) Name() string { return models.SolverGreedy }

func (g GreedySolver) Solve(ctx context.Context, m *Model, _ time.Duration) (*SolveResult, error) {
	if m == nil {
		return nil, errors.New("greedy: nil model")
	}
	start := time.Now()
	res := &SolveResult{
		Status:   models.StatusSuboptimal,
		Solver:   g.Name(),
		Degraded: true,
		Warnings: []string{"greedy heuristic used: allocation is feasible but not proven optimal"},
	}
	for _, sp := range m.Slots {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("greedy: solve: %w", err)
		}
		vals, obj := greedySlot(sp, m.Cost, m.Penalty)
		res.Values = append(res.Values, vals...)
		res.ObjectiveValue += obj
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// greedySlot returns a feasible relaxed allocation for one slot and its objective.
func greedySlot(sp *SlotProblem, cost, penalty float64) ([]CellSolution, float64) {
	want := make([]float64, len(sp.Cells))
	var total float64
	for i, cv := range sp.Cells {
		if penalty*cv.Throughput <= cost {
			continue
		}
		w := cv.Demand / cv.Throughput
		if cv.HasMax && w > cv.MaxDrivers {
			w = cv.MaxDrivers
		}
		want[i] = w
		total += w
	}

	scale := 1.0
	if sp.HasFleet && total > sp.Fleet {
		scale = sp.Fleet / total
	}

	out := make([]CellSolution, len(sp.Cells))
	var obj float64
	for i, cv := range sp.Cells {
		d := want[i] * scale
		served := d * cv.Throughput
		if served > cv.Demand {
			served = cv.Demand
		}
		short := cv.Demand - served
		out[i] = CellSolution{Cell: cv.Cell, Drivers: d, Served: served, Shortfall: short}
		obj += d*cost + short*penalty
	}
	return out, obj
}
