package models

import (
	"fmt"
	"math"
	"sort"
)

// DemandEntry is the forecast for one zone and hour. Variance is optional and zero
// when the forecaster does not report a confidence.
type DemandEntry struct {
	Zone     Zone     `json:"zone"`
	Slot     TimeSlot `json:"slot"`
	Expected float64  `json:"expected_demand"`
	Variance float64  `json:"variance,omitempty"`
}

type DuplicateDemandError struct {
	Cell Cell
}

func (e *DuplicateDemandError) Error() string {
	return fmt.Sprintf("demand table: duplicate entry for zone=%s slot=%d", e.Cell.Zone, e.Cell.Slot)
}

type InvalidDemandError struct {
	Cell   Cell
	Value  float64
	Reason string
}

func (e *InvalidDemandError) Error() string {
	return fmt.Sprintf("demand table: zone=%s slot=%d value=%v: %s", e.Cell.Zone, e.Cell.Slot, e.Value, e.Reason)
}

// DemandTable is an immutable (zone, slot) -> demand mapping. Missing pairs read as
// zero demand. The zero value is an empty table.
type DemandTable struct {
	entries map[Cell]DemandEntry
	cells   []Cell
	zones   []Zone
	slots   []TimeSlot
	total   float64
}

// NewDemandTable validates entries and builds a table. Duplicate keys and negative,
// NaN or infinite values are rejected.
func NewDemandTable(entries []DemandEntry) (*DemandTable, error) {
	t := &DemandTable{entries: make(map[Cell]DemandEntry, len(entries))}

	zoneSet := make(map[Zone]struct{})
	slotSet := make(map[TimeSlot]struct{})

	for _, e := range entries {
		cell := Cell{Zone: e.Zone, Slot: e.Slot}
		if e.Zone == "" {
			return nil, &InvalidDemandError{Cell: cell, Value: e.Expected, Reason: "zone must not be empty"}
		}
		if e.Slot < 0 {
			return nil, &InvalidDemandError{Cell: cell, Value: e.Expected, Reason: "slot must not be negative"}
		}
		if !validQuantity(e.Expected) {
			return nil, &InvalidDemandError{Cell: cell, Value: e.Expected, Reason: "expected demand must be a finite non-negative number"}
		}
		if !validQuantity(e.Variance) {
			return nil, &InvalidDemandError{Cell: cell, Value: e.Variance, Reason: "variance must be a finite non-negative number"}
		}
		if _, ok := t.entries[cell]; ok {
			return nil, &DuplicateDemandError{Cell: cell}
		}

		t.entries[cell] = e
		t.cells = append(t.cells, cell)
		t.total += e.Expected
		zoneSet[e.Zone] = struct{}{}
		slotSet[e.Slot] = struct{}{}
	}

	sort.Slice(t.cells, func(i, j int) bool { return t.cells[i].Less(t.cells[j]) })

	for z := range zoneSet {
		t.zones = append(t.zones, z)
	}
	sort.Slice(t.zones, func(i, j int) bool { return t.zones[i] < t.zones[j] })

	for s := range slotSet {
		t.slots = append(t.slots, s)
	}
	sort.Slice(t.slots, func(i, j int) bool { return t.slots[i] < t.slots[j] })

	return t, nil
}

func validQuantity(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Demand returns the expected demand of a cell, zero when the pair is absent.
func (t *DemandTable) Demand(zone Zone, slot TimeSlot) float64 {
	if t == nil {
		return 0
	}
	return t.entries[Cell{Zone: zone, Slot: slot}].Expected
}

// Entry returns the stored entry and whether the pair is present.
func (t *DemandTable) Entry(zone Zone, slot TimeSlot) (DemandEntry, bool) {
	if t == nil {
		return DemandEntry{}, false
	}
	e, ok := t.entries[Cell{Zone: zone, Slot: slot}]
	return e, ok
}

// Cells returns the present pairs ordered by slot then zone. The slice is a copy.
func (t *DemandTable) Cells() []Cell {
	if t == nil {
		return nil
	}
	return append([]Cell(nil), t.cells...)
}

func (t *DemandTable) Zones() []Zone {
	if t == nil {
		return nil
	}
	return append([]Zone(nil), t.zones...)
}

func (t *DemandTable) Slots() []TimeSlot {
	if t == nil {
		return nil
	}
	return append([]TimeSlot(nil), t.slots...)
}

// Entries returns all entries in cell order.
func (t *DemandTable) Entries() []DemandEntry {
	if t == nil {
		return nil
	}
	out := make([]DemandEntry, 0, len(t.cells))
	for _, c := range t.cells {
		out = append(out, t.entries[c])
	}
	return out
}

func (t *DemandTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.cells)
}

func (t *DemandTable) Total() float64 {
	if t == nil {
		return 0
	}
	return t.total
}
