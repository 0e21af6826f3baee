package optimizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

type brokenSolver struct{}

func (brokenSolver) Name() string { return "broken" }

func (brokenSolver) Solve(context.Context, *Model, time.Duration) (*SolveResult, error) {
	return nil, &SolverUnavailableError{Solver: "broken", Err: errors.New("singular basis")}
}

func TestOptimizerRun(t *testing.T) {
	opt := New(NewSimplexSolver(2), GreedySolver{}, zaptest.NewLogger(t))

	report, err := opt.Run(context.Background(), demandTable(t, entry("A", 0, 50)), baseCapacity())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "default", report.Scenario)
	assert.Equal(t, models.StatusOptimal, report.Status)
	assert.False(t, report.Degraded)
	assert.InDelta(t, 100.0, report.TotalCost, 1e-9)
}

func TestOptimizerRunIDsAreUnique(t *testing.T) {
	opt := New(NewSimplexSolver(1), nil, nil)
	tbl := demandTable(t, entry("A", 0, 50))

	a, err := opt.Run(context.Background(), tbl, baseCapacity())
	require.NoError(t, err)
	b, err := opt.Run(context.Background(), tbl, baseCapacity())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestOptimizerFallsBackToGreedy(t *testing.T) {
	opt := New(brokenSolver{}, GreedySolver{}, zaptest.NewLogger(t))
	cfg := baseCapacity()
	cfg.TotalDriversPerHour = models.Float64(3)

	report, err := opt.Run(context.Background(), demandTable(t, entry("A", 0, 50)), cfg)
	require.NoError(t, err)

	assert.True(t, report.Degraded)
	assert.Equal(t, models.SolverGreedy, report.Solver)
	assert.Equal(t, models.StatusSuboptimal, report.Status)
	assert.Equal(t, 3, report.Rows[0].Drivers)
	assert.InDelta(t, 0.6, report.OnTimeRate, 1e-9)

	var found bool
	for _, w := range report.Warnings {
		if strings.Contains(w, "primary solver unavailable") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOptimizerWithoutFallbackFails(t *testing.T) {
	opt := New(brokenSolver{}, nil, zaptest.NewLogger(t))

	report, err := opt.Run(context.Background(), demandTable(t, entry("A", 0, 50)), baseCapacity())
	assert.Nil(t, report)
	var unavailable *SolverUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestOptimizerBuildErrorReturnsNoReport(t *testing.T) {
	cfg := baseCapacity()
	cfg.DriverThroughput = 0

	report, err := New(nil, nil, nil).Run(context.Background(), demandTable(t, entry("A", 0, 50)), cfg)
	assert.Nil(t, report)
	var invalid *InvalidConfigError
	assert.ErrorAs(t, err, &invalid)
}

func TestOptimizerWithGrid(t *testing.T) {
	opt := New(NewSimplexSolver(2), nil, zaptest.NewLogger(t))

	report, err := opt.Run(context.Background(), demandTable(t, entry("A", 0, 50)), baseCapacity(),
		WithGrid([]models.Zone{"A", "B"}, 3))
	require.NoError(t, err)
	assert.Len(t, report.Rows, 6)
	assert.InDelta(t, 5.0, report.DriverHours, 1e-9)

	summaries := report.ZoneSummaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, models.Zone("A"), summaries[0].Zone)
	assert.InDelta(t, 50.0, summaries[0].Served, 1e-9)
	assert.InDelta(t, 1.0, summaries[1].OnTimeRate, 1e-9)
}

func TestSweepRecordsPerScenarioResults(t *testing.T) {
	opt := New(NewSimplexSolver(1), nil, zaptest.NewLogger(t))
	tbl := demandTable(t, entry("A", 0, 50), entry("B", 0, 20))

	scenarios := append(PenaltyScenarios([]float64{1, 100}), Scenario{
		Name:              "broken",
		CostPerDriverHour: models.Float64(-5),
	})
	scenarios = append(scenarios, FleetScenarios([]float64{3})...)

	var mu sync.Mutex
	var calls []int
	results := opt.Sweep(context.Background(), tbl, baseCapacity(), scenarios, 3, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		calls = append(calls, done)
	})

	require.Len(t, results, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)

	assert.Equal(t, "penalty=1", results[0].Scenario.Name)
	require.NoError(t, results[0].Err)
	assert.InDelta(t, 70.0, results[0].Report.TotalShortfall, 1e-9)

	require.NoError(t, results[1].Err)
	assert.InDelta(t, 0.0, results[1].Report.TotalShortfall, 1e-9)
	assert.Equal(t, "penalty=100", results[1].Report.Scenario)

	var invalid *InvalidConfigError
	assert.ErrorAs(t, results[2].Err, &invalid)
	assert.Nil(t, results[2].Report)

	require.NoError(t, results[3].Err)
	assert.InDelta(t, 3.0, results[3].Report.DriverHours, 1e-9)
}

func TestSweepCanceledContext(t *testing.T) {
	opt := New(NewSimplexSolver(1), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := opt.Sweep(ctx, demandTable(t, entry("A", 0, 50)), baseCapacity(), PenaltyScenarios([]float64{1, 2}), 2, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestScenarioApplyDoesNotModifyBase(t *testing.T) {
	base := baseCapacity()
	base.TotalDriversPerHour = models.Float64(10)

	sc := Scenario{Name: "x", TotalDriversPerHour: models.Float64(2), RushHourFactor: models.Float64(0.5)}
	out := sc.Apply(base)

	assert.Equal(t, 2.0, *out.TotalDriversPerHour)
	assert.Equal(t, 10.0, *base.TotalDriversPerHour)
	assert.Nil(t, base.Traffic)
	require.NotNil(t, out.Traffic)
	assert.Equal(t, models.DefaultRushHours, out.Traffic.RushHours)
	assert.Equal(t, 0.5, out.Traffic.RushFactor)
}

func TestFleetScenarioReplacesSlotFleets(t *testing.T) {
	base := baseCapacity()
	base.TotalDriversPerHour = models.Float64(10)
	base.TotalDriversBySlot = map[models.TimeSlot]float64{3: 1}

	out := Scenario{Name: "fleet=6", TotalDriversPerHour: models.Float64(6)}.Apply(base)
	for _, slot := range []models.TimeSlot{0, 3} {
		fleet, ok := out.FleetSize(slot)
		assert.True(t, ok)
		assert.Equal(t, 6.0, fleet)
	}
	assert.Equal(t, map[models.TimeSlot]float64{3: 1}, base.TotalDriversBySlot)

	kept := Scenario{Name: "penalty=50", LatePenaltyPerUnit: models.Float64(50)}.Apply(base)
	fleet, _ := kept.FleetSize(3)
	assert.Equal(t, 1.0, fleet)
}

func TestLoadScenarios(t *testing.T) {
	doc := `
scenarios:
  - name: low-penalty
    late_penalty_per_unit: 5
  - name: small-fleet
    total_drivers_available_per_hour: 12
    max_drivers_per_zone_hour: 3
`
	scenarios, err := LoadScenarios(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "low-penalty", scenarios[0].Name)
	assert.Equal(t, 5.0, *scenarios[0].LatePenaltyPerUnit)
	assert.Nil(t, scenarios[0].TotalDriversPerHour)
	assert.Equal(t, 12.0, *scenarios[1].TotalDriversPerHour)
	assert.Equal(t, 3.0, *scenarios[1].MaxDriversPerZoneHour)

	_, err = LoadScenarios(strings.NewReader("scenarios:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)

	_, err = LoadScenarios(strings.NewReader("scenarios:\n  - late_penalty_per_unit: 3\n"))
	assert.Error(t, err)

	_, err = LoadScenarios(strings.NewReader("scenarios:\n  - name: a\n    unknown_field: 1\n"))
	assert.Error(t, err)
}
