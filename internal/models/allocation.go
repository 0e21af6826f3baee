package models

import "sort"

// AllocationDecision is one row of the allocation table.
type AllocationDecision struct {
	Zone           Zone     `json:"zone"`
	Slot           TimeSlot `json:"slot"`
	Demand         float64  `json:"demand"`
	RelaxedDrivers float64  `json:"relaxed_drivers"`
	Drivers        int      `json:"drivers_assigned"`
	Throughput     float64  `json:"throughput"`
	Served         float64  `json:"served_demand"`
	Shortfall      float64  `json:"shortfall"`
	// Utilization is min(1, capacity / demand): how much of the demand the assigned
	// drivers could cover.
	Utilization float64 `json:"utilization"`
	// CapacityUsage is served / capacity: how busy the assigned drivers are.
	CapacityUsage float64 `json:"capacity_usage"`
}

// SolutionReport is the result of one optimization run.
type SolutionReport struct {
	RunID    string      `json:"run_id"`
	Scenario string      `json:"scenario,omitempty"`
	Status   SolveStatus `json:"status"`
	Solver   string      `json:"solver"`
	Degraded bool        `json:"degraded"`
	Warnings []string    `json:"warnings,omitempty"`

	Rows []AllocationDecision `json:"rows"`

	TotalDemand      float64 `json:"total_demand"`
	TotalServed      float64 `json:"total_served"`
	TotalShortfall   float64 `json:"total_shortfall"`
	DriverHours      float64 `json:"driver_hours"`
	DriverCost       float64 `json:"driver_cost"`
	PenaltyCost      float64 `json:"total_penalty"`
	TotalCost        float64 `json:"total_cost"`
	RelaxedObjective float64 `json:"relaxed_objective"`
	OnTimeRate       float64 `json:"on_time_rate"`
}

// Optimal reports whether the solver proved optimality for every slot.
func (r *SolutionReport) Optimal() bool {
	return r != nil && r.Status == StatusOptimal && !r.Degraded
}

type ZoneSummary struct {
	Zone        Zone    `json:"zone"`
	Demand      float64 `json:"demand"`
	Served      float64 `json:"served"`
	Shortfall   float64 `json:"shortfall"`
	DriverHours float64 `json:"driver_hours"`
	OnTimeRate  float64 `json:"on_time_rate"`
}

// ZoneSummaries aggregates the rows per zone, ordered by zone.
func (r *SolutionReport) ZoneSummaries() []ZoneSummary {
	if r == nil {
		return nil
	}
	byZone := make(map[Zone]*ZoneSummary)
	for _, row := range r.Rows {
		s, ok := byZone[row.Zone]
		if !ok {
			s = &ZoneSummary{Zone: row.Zone}
			byZone[row.Zone] = s
		}
		s.Demand += row.Demand
		s.Served += row.Served
		s.Shortfall += row.Shortfall
		s.DriverHours += float64(row.Drivers)
	}

	out := make([]ZoneSummary, 0, len(byZone))
	for _, s := range byZone {
		s.OnTimeRate = OnTimeRate(s.Shortfall, s.Demand)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out
}

// OnTimeRate is 1 - shortfall/demand, and 1 when there is no demand.
func OnTimeRate(shortfall, demand float64) float64 {
	if demand <= 0 {
		return 1
	}
	return 1 - shortfall/demand
}
