package optimizer

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

func solve(t *testing.T, tbl *models.DemandTable, cfg models.CapacityConfig) *SolveResult {
	t.Helper()
	m, err := Build(tbl, cfg)
	require.NoError(t, err)
	res, err := NewSimplexSolver(2).Solve(context.Background(), m, time.Minute)
	require.NoError(t, err)
	return res
}

func TestSimplexServesDemandWhenCheaperThanPenalty(t *testing.T) {
	res := solve(t, demandTable(t, entry("A", 0, 50)), baseCapacity())

	assert.Equal(t, models.StatusOptimal, res.Status)
	assert.Equal(t, models.SolverSimplex, res.Solver)
	require.Len(t, res.Values, 1)
	assert.InDelta(t, 5.0, res.Values[0].Drivers, 1e-6)
	assert.InDelta(t, 50.0, res.Values[0].Served, 1e-6)
	assert.InDelta(t, 0.0, res.Values[0].Shortfall, 1e-6)
	assert.InDelta(t, 100.0, res.ObjectiveValue, 1e-6)
}

func TestSimplexSkipsDemandWhenPenaltyIsCheaper(t *testing.T) {
	cfg := baseCapacity()
	cfg.LatePenaltyPerUnit = 1

	res := solve(t, demandTable(t, entry("A", 0, 50)), cfg)

	assert.Equal(t, models.StatusOptimal, res.Status)
	assert.InDelta(t, 0.0, res.Values[0].Drivers, 1e-6)
	assert.InDelta(t, 50.0, res.Values[0].Shortfall, 1e-6)
	assert.InDelta(t, 50.0, res.ObjectiveValue, 1e-6)
}

func TestSimplexRespectsFleetAndCellBounds(t *testing.T) {
	cfg := baseCapacity()
	cfg.MaxDriversPerZoneHour = models.Float64(4)
	cfg.TotalDriversPerHour = models.Float64(6)

	res := solve(t, demandTable(t, entry("A", 0, 50), entry("B", 0, 50)), cfg)
	require.Equal(t, models.StatusOptimal, res.Status)

	var drivers, served float64
	for _, v := range res.Values {
		assert.LessOrEqual(t, v.Drivers, 4+1e-9)
		drivers += v.Drivers
		served += v.Served
	}
	assert.InDelta(t, 6.0, drivers, 1e-6)
	assert.InDelta(t, 60.0, served, 1e-6)
}

func TestSimplexPerSlotFleetOverride(t *testing.T) {
	cfg := baseCapacity()
	cfg.TotalDriversPerHour = models.Float64(100)
	cfg.TotalDriversBySlot = map[models.TimeSlot]float64{1: 2}

	res := solve(t, demandTable(t, entry("A", 0, 50), entry("A", 1, 50)), cfg)
	require.Len(t, res.Values, 2)
	assert.InDelta(t, 50.0, res.Values[0].Served, 1e-6)
	assert.InDelta(t, 20.0, res.Values[1].Served, 1e-6)
}

// Four zones share a fleet that runs out inside the third-best zone. The slot LP
// is degenerate at every vertex; the solve must finish without a time limit and
// prove optimality.
func TestSimplexDegenerateSlotSolvesWithoutTimeLimit(t *testing.T) {
	tbl := demandTable(t,
		entry("z0", 0, 21.7303), entry("z1", 0, 56.2983),
		entry("z2", 0, 22.8404), entry("z3", 0, 40.2872))
	cfg := models.CapacityConfig{
		DriverThroughput:    5.69005,
		ZoneThroughput:      map[models.Zone]float64{"z1": 3.40101},
		TotalDriversPerHour: models.Float64(6.20193),
		CostPerDriverHour:   21,
		LatePenaltyPerUnit:  1000,
	}
	m, err := Build(tbl, cfg)
	require.NoError(t, err)

	done := make(chan *SolveResult, 1)
	go func() {
		res, err := NewSimplexSolver(1).Solve(context.Background(), m, 0)
		assert.NoError(t, err)
		done <- res
	}()

	var res *SolveResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("solve did not return")
	}
	require.NotNil(t, res)
	assert.Equal(t, models.StatusOptimal, res.Status)
	assert.Empty(t, res.Warnings)

	fleet, thr := 6.20193, 5.69005
	want := 21*fleet + 1000*(tbl.Total()-thr*fleet)
	assert.InDelta(t, want, res.ObjectiveValue, 1e-6)

	require.Len(t, res.Values, 4)
	assert.InDelta(t, 21.7303/thr, res.Values[0].Drivers, 1e-9)
	assert.InDelta(t, 0.0, res.Values[1].Drivers, 1e-9)
	assert.InDelta(t, fleet-21.7303/thr, res.Values[2].Drivers, 1e-9)
	assert.InDelta(t, 0.0, res.Values[3].Drivers, 1e-9)
}

func TestSimplexFleetTies(t *testing.T) {
	tbl := demandTable(t, entry("A", 0, 50), entry("B", 0, 30), entry("C", 0, 0))
	for _, fleet := range []float64{0, 3, 5, 8, 20} {
		t.Run(strconv.FormatFloat(fleet, 'f', -1, 64), func(t *testing.T) {
			cfg := baseCapacity()
			cfg.TotalDriversPerHour = models.Float64(fleet)
			m, err := Build(tbl, cfg)
			require.NoError(t, err)

			res, err := NewSimplexSolver(1).Solve(context.Background(), m, 0)
			require.NoError(t, err)
			assert.Equal(t, models.StatusOptimal, res.Status)

			used := math.Min(fleet, 8)
			assert.InDelta(t, 20*used+100*(80-10*used), res.ObjectiveValue, 1e-6)
		})
	}
}

func TestSimplexMatchesKnapsackOptimum(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 29))
	throughputs := []float64{2, 2.5, 4, 4, 7.25}

	for n := 0; n < 300; n++ {
		zones := 2 + rng.IntN(6)
		var entries []models.DemandEntry
		cfg := models.CapacityConfig{
			DriverThroughput:   4,
			ZoneThroughput:     map[models.Zone]float64{},
			CostPerDriverHour:  float64(rng.IntN(40)),
			LatePenaltyPerUnit: float64(rng.IntN(30)),
		}
		for z := 0; z < zones; z++ {
			zone := models.Zone(string(rune('A' + z)))
			entries = append(entries, models.DemandEntry{Zone: zone, Expected: float64(rng.IntN(40))})
			cfg.ZoneThroughput[zone] = throughputs[rng.IntN(len(throughputs))]
		}
		if rng.IntN(3) > 0 {
			cfg.TotalDriversPerHour = models.Float64(float64(rng.IntN(25)))
		}
		if rng.IntN(3) == 0 {
			cfg.MaxDriversPerZoneHour = models.Float64(float64(rng.IntN(6)))
		}
		tbl := demandTable(t, entries...)

		m, err := Build(tbl, cfg)
		require.NoError(t, err)
		res, err := NewSimplexSolver(1).Solve(context.Background(), m, 0)
		require.NoError(t, err)

		require.Equal(t, models.StatusOptimal, res.Status, "instance %d", n)
		assert.InDelta(t, knapsackOptimum(tbl, cfg), res.ObjectiveValue, 1e-6, "instance %d", n)
	}
}

// knapsackOptimum is the relaxed optimum of a single slot: drivers go to the
// zones that save the most per driver-hour until the fleet is spent.
func knapsackOptimum(tbl *models.DemandTable, cfg models.CapacityConfig) float64 {
	type zone struct{ demand, thr float64 }
	var zones []zone
	for _, c := range tbl.Cells() {
		zones = append(zones, zone{tbl.Demand(c.Zone, c.Slot), cfg.Throughput(c.Zone, c.Slot)})
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].thr > zones[j].thr })

	fleet := math.Inf(1)
	if cfg.TotalDriversPerHour != nil {
		fleet = *cfg.TotalDriversPerHour
	}
	cost := 0.0
	for _, z := range zones {
		d := 0.0
		if cfg.LatePenaltyPerUnit*z.thr > cfg.CostPerDriverHour {
			d = math.Min(z.demand/z.thr, fleet)
			if cfg.MaxDriversPerZoneHour != nil {
				d = math.Min(d, *cfg.MaxDriversPerZoneHour)
			}
		}
		fleet -= d
		cost += cfg.CostPerDriverHour*d + cfg.LatePenaltyPerUnit*(z.demand-z.thr*d)
	}
	return cost
}

func TestSimplexReportsInfeasibleSlot(t *testing.T) {
	m := &Model{
		Cost: 1,
		Slots: []*SlotProblem{{
			Slot: 3,
			C:    []float64{1, 1},
			A:    mat.NewDense(1, 2, []float64{1, 1}),
			B:    []float64{-1},
		}},
	}

	res, err := NewSimplexSolver(1).Solve(context.Background(), m, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInfeasible, res.Status)
	require.NotNil(t, res.Infeasible)
	assert.Equal(t, models.TimeSlot(3), res.Infeasible.Slot)
	assert.NotEmpty(t, res.Infeasible.Reason)
	assert.Nil(t, res.Values)
}

func TestSimplexExpiredDeadlineUsesIncumbent(t *testing.T) {
	m, err := Build(demandTable(t, entry("A", 0, 50), entry("A", 1, 20)), baseCapacity())
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	res, err := NewSimplexSolver(2).Solve(ctx, m, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuboptimal, res.Status)
	assert.NotEmpty(t, res.Warnings)
	require.Len(t, res.Values, 2)
	assert.InDelta(t, 5.0, res.Values[0].Drivers, 1e-9)
	assert.InDelta(t, 2.0, res.Values[1].Drivers, 1e-9)
}

func TestSimplexCanceledContextIsAnError(t *testing.T) {
	m, err := Build(demandTable(t, entry("A", 0, 50)), baseCapacity())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewSimplexSolver(1).Solve(ctx, m, time.Second)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSimplexWorkerCountDoesNotChangeResult(t *testing.T) {
	tbl := randomTable(t, 7, 4, 24)
	cfg := baseCapacity()
	cfg.MaxDriversPerZoneHour = models.Float64(3)

	m, err := Build(tbl, cfg)
	require.NoError(t, err)

	one, err := NewSimplexSolver(1).Solve(context.Background(), m, time.Minute)
	require.NoError(t, err)
	many, err := NewSimplexSolver(8).Solve(context.Background(), m, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, one.Values, many.Values)
	assert.InDelta(t, one.ObjectiveValue, many.ObjectiveValue, 1e-9)
}

func TestGreedyScalesToFleet(t *testing.T) {
	cfg := baseCapacity()
	cfg.TotalDriversPerHour = models.Float64(4)

	m, err := Build(demandTable(t, entry("A", 0, 50), entry("B", 0, 30)), cfg)
	require.NoError(t, err)

	res, err := GreedySolver{}.Solve(context.Background(), m, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuboptimal, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, models.SolverGreedy, res.Solver)

	require.Len(t, res.Values, 2)
	assert.InDelta(t, 2.5, res.Values[0].Drivers, 1e-9)
	assert.InDelta(t, 1.5, res.Values[1].Drivers, 1e-9)
	assert.InDelta(t, 25.0, res.Values[0].Served, 1e-9)
	assert.InDelta(t, 25.0, res.Values[0].Shortfall, 1e-9)
}

func TestGreedyCapsPerCell(t *testing.T) {
	cfg := baseCapacity()
	cfg.MaxDriversPerZoneHour = models.Float64(2)

	m, err := Build(demandTable(t, entry("A", 0, 50)), cfg)
	require.NoError(t, err)

	res, err := GreedySolver{}.Solve(context.Background(), m, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Values[0].Drivers, 1e-9)
	assert.InDelta(t, 30.0, res.Values[0].Shortfall, 1e-9)
	assert.InDelta(t, 2*20+30*100.0, res.ObjectiveValue, 1e-9)
}

// randomTable builds a deterministic demand table over zones x slots.
func randomTable(t *testing.T, seed uint64, zones, slots int) *models.DemandTable {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	var entries []models.DemandEntry
	for s := 0; s < slots; s++ {
		for z := 0; z < zones; z++ {
			entries = append(entries, models.DemandEntry{
				Zone:     models.Zone(string(rune('A' + z))),
				Slot:     models.TimeSlot(s),
				Expected: float64(rng.IntN(60)),
			})
		}
	}
	return demandTable(t, entries...)
}
