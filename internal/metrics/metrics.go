package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry is the dedicated Prometheus registry for planner runs
	Registry = prometheus.NewRegistry()
	// Runs counts optimization runs by solver and final status
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleetalloc_runs_total", Help: "Optimization runs by solver and status."},
		[]string{"solver", "status"},
	)
	// RunErrors counts failed runs by stage
	RunErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleetalloc_run_errors_total", Help: "Failed optimization runs by stage."},
		[]string{"stage"},
	)
	// Fallbacks counts runs that switched to the greedy solver
	Fallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fleetalloc_solver_fallbacks_total", Help: "Runs that fell back to the greedy solver."},
	)
	// SolveDuration records solver wall clock in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fleetalloc_solve_duration_seconds", Help: "Solver wall clock in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}},
		[]string{"solver"},
	)
	// TotalCost is the total cost of the last run per scenario
	TotalCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "fleetalloc_total_cost", Help: "Total cost of the last run."},
		[]string{"scenario"},
	)
	// OnTimeRate is the on-time rate of the last run per scenario
	OnTimeRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "fleetalloc_on_time_rate", Help: "On-time rate of the last run."},
		[]string{"scenario"},
	)
)

var regOnce sync.Once

// Register adds the planner collectors to Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(Runs)
		Registry.MustRegister(RunErrors)
		Registry.MustRegister(Fallbacks)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(TotalCost)
		Registry.MustRegister(OnTimeRate)
	})
}

func ObserveSolve(solver string, d time.Duration) {
	SolveDuration.WithLabelValues(solver).Observe(d.Seconds())
}

// Push sends the registry to a Pushgateway. Batch jobs have no scrape endpoint.
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(Registry).Push()
}
