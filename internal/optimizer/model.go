package optimizer

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// CellVars describes one (zone, slot) of a slot problem together with the column
// indices of its decision variables.
type CellVars struct {
	Cell       models.Cell
	Demand     float64
	Throughput float64
	MaxDrivers float64
	HasMax     bool

	Drivers   int
	Served    int
	Shortfall int

	capSlack int
	maxSlack int
}

// SlotProblem is the standard-form LP of a single slot:
//
//	minimize c'x subject to Ax = b, x >= 0
//
// Every inequality carries its own slack column. Basis is an optimal starting
// basis derived from the slot's knapsack structure (see planSlot) and Plan holds
// the relaxed drivers per cell at that basis.
type SlotProblem struct {
	Slot     models.TimeSlot
	Cells    []CellVars
	Fleet    float64
	HasFleet bool

	C     []float64
	A     *mat.Dense
	B     []float64
	Basis []int
	Plan  []float64

	fleetSlack int
}

// Model is the allocation LP for a whole horizon. No constraint spans two slots, so
// it is stored as independent slot problems ordered by slot.
type Model struct {
	Slots   []*SlotProblem
	Cost    float64
	Penalty float64
}

// Cells returns every cell of the model ordered by slot then zone.
func (m *Model) Cells() []models.Cell {
	var out []models.Cell
	for _, sp := range m.Slots {
		for _, cv := range sp.Cells {
			out = append(out, cv.Cell)
		}
	}
	return out
}

func (m *Model) NumCells() int {
	n := 0
	for _, sp := range m.Slots {
		n += len(sp.Cells)
	}
	return n
}

type buildOptions struct {
	gridZones   []models.Zone
	gridHorizon int
	grid        bool
}

type BuildOption func(*buildOptions)

// WithGrid plans the full zones x [0, horizon) grid; pairs absent from the demand
// table get zero demand. Cells of the table outside the grid are kept.
func WithGrid(zones []models.Zone, horizon int) BuildOption {
	return func(o *buildOptions) {
		o.grid = true
		o.gridZones = append([]models.Zone(nil), zones...)
		o.gridHorizon = horizon
	}
}

// Build validates the capacity config and translates the demand table into slot
// problems. It has no side effects.
func Build(demand *models.DemandTable, cfg models.CapacityConfig, opts ...BuildOption) (*Model, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if demand == nil {
		return nil, &InvalidConfigError{Field: "demand", Value: nil, Reason: "demand table is required"}
	}
	if err := validate(cfg, o); err != nil {
		return nil, err
	}

	cells := demand.Cells()
	if o.grid {
		seen := make(map[models.Cell]struct{}, len(cells))
		for _, c := range cells {
			seen[c] = struct{}{}
		}
		for s := 0; s < o.gridHorizon; s++ {
			for _, z := range o.gridZones {
				c := models.Cell{Zone: z, Slot: models.TimeSlot(s)}
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					cells = append(cells, c)
				}
			}
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i].Less(cells[j]) })
	}

	m := &Model{Cost: cfg.CostPerDriverHour, Penalty: cfg.LatePenaltyPerUnit}
	maxPer, hasMax := cfg.MaxDrivers()

	for start := 0; start < len(cells); {
		end := start
		for end < len(cells) && cells[end].Slot == cells[start].Slot {
			end++
		}
		slot := cells[start].Slot

		vars := make([]CellVars, 0, end-start)
		for _, c := range cells[start:end] {
			thr := cfg.Throughput(c.Zone, c.Slot)
			if !(thr > 0) || math.IsInf(thr, 0) {
				return nil, &InvalidConfigError{Field: "throughput[" + c.String() + "]", Value: thr, Reason: "effective throughput must be positive and finite"}
			}
			vars = append(vars, CellVars{
				Cell:       c,
				Demand:     demand.Demand(c.Zone, c.Slot),
				Throughput: thr,
				MaxDrivers: maxPer,
				HasMax:     hasMax,
			})
		}
		fleet, hasFleet := cfg.FleetSize(slot)
		m.Slots = append(m.Slots, buildSlot(slot, vars, fleet, hasFleet, m.Cost, m.Penalty))
		start = end
	}

	return m, nil
}

// buildSlot lays out columns per cell as drivers, served, shortfall, capacity slack
// and, when bounded, the max-drivers slack. The fleet slack is last. Rows per cell:
//
//	served - throughput*drivers + sC = 0
//	served + shortfall = demand
//	drivers + sM = maxDrivers        (optional)
//
// and one fleet row sum(drivers) + sF = fleet when configured. served <= demand
// needs no row of its own: it follows from shortfall >= 0.
func buildSlot(slot models.TimeSlot, vars []CellVars, fleet float64, hasFleet bool, cost, penalty float64) *SlotProblem {
	colsPer, rowsPer := 4, 2
	if len(vars) > 0 && vars[0].HasMax {
		colsPer, rowsPer = 5, 3
	}
	cols := colsPer * len(vars)
	rows := rowsPer * len(vars)
	if hasFleet {
		cols++
		rows++
	}

	sp := &SlotProblem{
		Slot:       slot,
		Cells:      vars,
		Fleet:      fleet,
		HasFleet:   hasFleet,
		C:          make([]float64, cols),
		A:          mat.NewDense(rows, cols, nil),
		B:          make([]float64, rows),
		fleetSlack: -1,
	}

	for i := range vars {
		col := i * colsPer
		row := i * rowsPer
		cv := &sp.Cells[i]
		cv.Drivers, cv.Served, cv.Shortfall, cv.capSlack = col, col+1, col+2, col+3
		cv.maxSlack = -1

		sp.C[cv.Drivers] = cost
		sp.C[cv.Shortfall] = penalty

		sp.A.Set(row, cv.Served, 1)
		sp.A.Set(row, cv.Drivers, -cv.Throughput)
		sp.A.Set(row, cv.capSlack, 1)

		sp.A.Set(row+1, cv.Served, 1)
		sp.A.Set(row+1, cv.Shortfall, 1)
		sp.B[row+1] = cv.Demand

		if cv.HasMax {
			cv.maxSlack = col + 4
			sp.A.Set(row+2, cv.Drivers, 1)
			sp.A.Set(row+2, cv.maxSlack, 1)
			sp.B[row+2] = cv.MaxDrivers
		}
	}

	if hasFleet {
		row := rows - 1
		sp.fleetSlack = cols - 1
		for _, cv := range sp.Cells {
			sp.A.Set(row, cv.Drivers, 1)
		}
		sp.A.Set(row, sp.fleetSlack, 1)
		sp.B[row] = fleet
	}

	sp.Plan, sp.Basis = planSlot(sp, cost, penalty)
	return sp
}

func validate(cfg models.CapacityConfig, o buildOptions) error {
	checks := []struct {
		field string
		value float64
		ok    func(float64) bool
		why   string
	}{
		{"capacity.driver_throughput", cfg.DriverThroughput, positive, "must be positive"},
		{"capacity.cost_per_driver_hour", cfg.CostPerDriverHour, nonNegative, "must not be negative"},
		{"capacity.late_penalty_per_unit", cfg.LatePenaltyPerUnit, nonNegative, "must not be negative"},
	}
	for _, c := range checks {
		if !c.ok(c.value) {
			return &InvalidConfigError{Field: c.field, Value: c.value, Reason: c.why}
		}
	}

	for z, v := range cfg.ZoneThroughput {
		if !positive(v) {
			return &InvalidConfigError{Field: "capacity.zone_throughput." + string(z), Value: v, Reason: "must be positive"}
		}
	}
	for c, v := range cfg.CellThroughput {
		if !positive(v) {
			return &InvalidConfigError{Field: "capacity.cell_throughput." + c.String(), Value: v, Reason: "must be positive"}
		}
	}
	if cfg.Traffic != nil && cfg.Traffic.RushFactor != 0 && !positive(cfg.Traffic.RushFactor) {
		return &InvalidConfigError{Field: "capacity.rush_hour_throughput_factor", Value: cfg.Traffic.RushFactor, Reason: "must be positive"}
	}
	if v, ok := cfg.MaxDrivers(); ok && !nonNegative(v) {
		return &InvalidConfigError{Field: "capacity.max_drivers_per_zone_hour", Value: v, Reason: "must not be negative"}
	}
	if cfg.TotalDriversPerHour != nil && !nonNegative(*cfg.TotalDriversPerHour) {
		return &InvalidConfigError{Field: "capacity.total_drivers_available_per_hour", Value: *cfg.TotalDriversPerHour, Reason: "must not be negative"}
	}
	for s, v := range cfg.TotalDriversBySlot {
		if !nonNegative(v) {
			return &InvalidConfigError{Field: "capacity.total_drivers_by_slot", Value: v, Reason: "must not be negative at slot " + strconv.Itoa(int(s))}
		}
	}
	if cfg.SolverTimeLimit < 0 {
		return &InvalidConfigError{Field: "capacity.solver_time_limit_seconds", Value: cfg.SolverTimeLimit.Seconds(), Reason: "must not be negative; 0 means no limit"}
	}
	if o.grid && o.gridHorizon < 0 {
		return &InvalidConfigError{Field: "horizon", Value: o.gridHorizon, Reason: "must not be negative"}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// nonNegative also rejects NaN.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
