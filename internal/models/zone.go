package models

import "fmt"

// Zone identifies a geographic partition of the service area.
type Zone string

// TimeSlot is an hour index within the planning horizon.
type TimeSlot int

// HourOfDay returns the clock hour a slot falls on, assuming slot 0 starts at midnight.
func (s TimeSlot) HourOfDay() int {
	h := int(s) % 24
	if h < 0 {
		h += 24
	}
	return h
}

// Cell is a single (zone, slot) pair of the planning grid.
type Cell struct {
	Zone Zone     `json:"zone"`
	Slot TimeSlot `json:"slot"`
}

func (c Cell) String() string {
	return fmt.Sprintf("%s@%d", c.Zone, c.Slot)
}

// Less orders cells by slot first, then by zone.
func (c Cell) Less(o Cell) bool {
	if c.Slot != o.Slot {
		return c.Slot < o.Slot
	}
	return c.Zone < o.Zone
}

type ZoneInfo struct {
	ID      Zone   `json:"id"`
	Name    string `json:"name"`
	Cluster string `json:"cluster"`
}
