package models

import "time"

// CapacityConfig holds the labor side of a planning run. It is read-only for the
// duration of a run; scenario sweeps derive copies with Scenario.Apply.
type CapacityConfig struct {
	// DriverThroughput is the default number of deliveries a driver completes per hour.
	DriverThroughput float64
	ZoneThroughput   map[Zone]float64
	CellThroughput   map[Cell]float64
	Traffic          *TrafficProfile

	// MaxDriversPerZoneHour bounds every cell when set.
	MaxDriversPerZoneHour *float64
	// TotalDriversPerHour is the fleet shared by all zones in a slot.
	TotalDriversPerHour *float64
	// TotalDriversBySlot overrides TotalDriversPerHour for specific slots.
	TotalDriversBySlot map[TimeSlot]float64

	CostPerDriverHour  float64
	LatePenaltyPerUnit float64
	// SolverTimeLimit is the wall-clock limit of a solve; 0 means no limit.
	SolverTimeLimit time.Duration
}

// Throughput returns the effective deliveries per driver-hour for a cell: the cell
// override, else the zone override, else the default, times the traffic factor.
func (c CapacityConfig) Throughput(zone Zone, slot TimeSlot) float64 {
	base := c.DriverThroughput
	if v, ok := c.ZoneThroughput[zone]; ok {
		base = v
	}
	if v, ok := c.CellThroughput[Cell{Zone: zone, Slot: slot}]; ok {
		base = v
	}
	return base * c.Traffic.Factor(slot)
}

// FleetSize returns the number of drivers available across zones in a slot and
// whether a bound is configured.
func (c CapacityConfig) FleetSize(slot TimeSlot) (float64, bool) {
	if v, ok := c.TotalDriversBySlot[slot]; ok {
		return v, true
	}
	if c.TotalDriversPerHour != nil {
		return *c.TotalDriversPerHour, true
	}
	return 0, false
}

func (c CapacityConfig) MaxDrivers() (float64, bool) {
	if c.MaxDriversPerZoneHour == nil {
		return 0, false
	}
	return *c.MaxDriversPerZoneHour, true
}

// Float64 returns a pointer to v, for the optional bounds.
func Float64(v float64) *float64 {
	return &v
}
