package optimizer

import (
	"math"
	"sort"
)

// planSlot solves a slot's relaxation in closed form and returns the drivers per
// cell together with a basis of the slot LP at that point.
//
// With throughput fixed per cell the slot is a fractional knapsack: a driver in
// cell i avoids penalty*throughput-cost, so cells with a positive margin are
// filled in margin order (ties by cell order) up to demand/throughput or the cell
// maximum until the fleet runs out. The cell the fleet cuts is the marginal cell.
//
// The basis is chosen so that its duals are non-negative on every nonbasic
// column. Started from it the simplex method finds no improving column and
// stops without pivoting, so degenerate slots cannot make it cycle.
func planSlot(sp *SlotProblem, cost, penalty float64) ([]float64, []int) {
	n := len(sp.Cells)
	drivers := make([]float64, n)

	order := make([]int, 0, n)
	for i, cv := range sp.Cells {
		if margin(cv, cost, penalty) > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return margin(sp.Cells[order[a]], cost, penalty) > margin(sp.Cells[order[b]], cost, penalty)
	})

	const (
		unwanted = iota
		full
		marginal
	)
	kind := make([]int, n)

	remaining := math.Inf(1)
	if sp.HasFleet {
		remaining = sp.Fleet
	}
	for _, i := range order {
		want := driverCap(sp.Cells[i])
		if sp.HasFleet && want >= remaining {
			drivers[i] = math.Max(remaining, 0)
			kind[i] = marginal
			break
		}
		drivers[i] = want
		kind[i] = full
		remaining -= want
	}

	basis := make([]int, 0, len(sp.B))
	hasMarginal := false
	for i, cv := range sp.Cells {
		switch kind[i] {
		case marginal:
			hasMarginal = true
			basis = append(basis, cv.Drivers, cv.Served, cv.Shortfall)
			if cv.HasMax {
				basis = append(basis, cv.maxSlack)
			}
		case full:
			basis = append(basis, cv.Drivers, cv.Served)
			switch {
			case maxBinds(cv):
				basis = append(basis, cv.Shortfall)
			case cv.HasMax:
				basis = append(basis, cv.maxSlack)
			}
		default:
			basis = append(basis, cv.Served, cv.Shortfall)
			if cv.HasMax {
				basis = append(basis, cv.maxSlack)
			}
		}
	}
	if sp.HasFleet && !hasMarginal {
		basis = append(basis, sp.fleetSlack)
	}
	return drivers, basis
}

// margin is the cost saved by one more driver-hour in the cell.
func margin(cv CellVars, cost, penalty float64) float64 {
	return penalty*cv.Throughput - cost
}

// driverCap is the most drivers a cell can use: enough to serve its demand,
// capped by the cell maximum.
func driverCap(cv CellVars) float64 {
	if maxBinds(cv) {
		return cv.MaxDrivers
	}
	return cv.Demand / cv.Throughput
}

func maxBinds(cv CellVars) bool {
	return cv.HasMax && cv.MaxDrivers < cv.Demand/cv.Throughput
}

// planSolution returns the closed-form allocation of a slot and its objective.
func planSolution(sp *SlotProblem, cost, penalty float64) ([]CellSolution, float64) {
	out := make([]CellSolution, len(sp.Cells))
	var obj float64
	for i, cv := range sp.Cells {
		d := sp.Plan[i]
		served := math.Min(d*cv.Throughput, cv.Demand)
		short := cv.Demand - served
		out[i] = CellSolution{Cell: cv.Cell, Drivers: d, Served: served, Shortfall: short}
		obj += d*cost + short*penalty
	}
	return out, obj
}
