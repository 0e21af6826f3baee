package optimizer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// Scenario is a named set of overrides on a base capacity config. Nil fields keep
// the base value. A fleet override replaces the per-slot fleet sizes of the base
// as well, so every slot plans with the scenario's fleet.
type Scenario struct {
	Name                  string   `yaml:"name"`
	DriverThroughput      *float64 `yaml:"driver_throughput,omitempty"`
	MaxDriversPerZoneHour *float64 `yaml:"max_drivers_per_zone_hour,omitempty"`
	TotalDriversPerHour   *float64 `yaml:"total_drivers_available_per_hour,omitempty"`
	CostPerDriverHour     *float64 `yaml:"cost_per_driver_hour,omitempty"`
	LatePenaltyPerUnit    *float64 `yaml:"late_penalty_per_unit,omitempty"`
	RushHourFactor        *float64 `yaml:"rush_hour_throughput_factor,omitempty"`
}

// Apply returns a copy of base with the scenario's overrides. base is not modified.
func (s Scenario) Apply(base models.CapacityConfig) models.CapacityConfig {
	out := base
	if s.DriverThroughput != nil {
		out.DriverThroughput = *s.DriverThroughput
	}
	if s.MaxDriversPerZoneHour != nil {
		out.MaxDriversPerZoneHour = models.Float64(*s.MaxDriversPerZoneHour)
	}
	if s.TotalDriversPerHour != nil {
		out.TotalDriversPerHour = models.Float64(*s.TotalDriversPerHour)
		out.TotalDriversBySlot = nil
	}
	if s.CostPerDriverHour != nil {
		out.CostPerDriverHour = *s.CostPerDriverHour
	}
	if s.LatePenaltyPerUnit != nil {
		out.LatePenaltyPerUnit = *s.LatePenaltyPerUnit
	}
	if s.RushHourFactor != nil {
		profile := models.TrafficProfile{RushHours: models.DefaultRushHours}
		if base.Traffic != nil {
			profile.RushHours = append([]int(nil), base.Traffic.RushHours...)
		}
		profile.RushFactor = *s.RushHourFactor
		out.Traffic = &profile
	}
	return out
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios decodes a YAML document with a top-level scenarios list.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	var f scenarioFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("scenarios: decode: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Scenarios))
	for i, s := range f.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenarios: entry %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenarios: duplicate name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return f.Scenarios, nil
}

func LoadScenarioFile(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	defer f.Close()
	return LoadScenarios(f)
}

// PenaltyScenarios builds one scenario per late penalty.
func PenaltyScenarios(penalties []float64) []Scenario {
	out := make([]Scenario, 0, len(penalties))
	for _, p := range penalties {
		out = append(out, Scenario{
			Name:               "penalty=" + strconv.FormatFloat(p, 'g', -1, 64),
			LatePenaltyPerUnit: models.Float64(p),
		})
	}
	return out
}

// FleetScenarios builds one scenario per fleet size.
func FleetScenarios(sizes []float64) []Scenario {
	out := make([]Scenario, 0, len(sizes))
	for _, n := range sizes {
		out = append(out, Scenario{
			Name:                "fleet=" + strconv.FormatFloat(n, 'g', -1, 64),
			TotalDriversPerHour: models.Float64(n),
		})
	}
	return out
}

type SweepResult struct {
	Scenario Scenario
	Report   *models.SolutionReport
	Err      error
}

// ProgressFunc is called after each scenario finishes. Calls are serialized.
type ProgressFunc func(done, total int)

// Sweep runs every scenario against the same demand on a pool of workers. Results
// keep the order of scenarios; a failed scenario records its error and does not
// stop the others.
func (o *Optimizer) Sweep(ctx context.Context, demand *models.DemandTable, base models.CapacityConfig, scenarios []Scenario, workers int, progress ProgressFunc, opts ...BuildOption) []SweepResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]SweepResult, len(scenarios))

	var (
		mu   sync.Mutex
		done int
	)
	var g errgroup.Group
	g.SetLimit(workers)

	for i, sc := range scenarios {
		g.Go(func() error {
			results[i].Scenario = sc
			if err := ctx.Err(); err != nil {
				results[i].Err = err
			} else {
				results[i].Report, results[i].Err = o.RunScenario(ctx, sc.Name, demand, sc.Apply(base), opts...)
			}
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(scenarios))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
