package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

const (
	EventAllocationRow = "allocation_row"
	EventAllocationRun = "allocation_run"
)

// AllocationRowEvent is one row of the allocation table.
type AllocationRowEvent struct {
	Timestamp      int64   `json:"timestamp" parquet:"name=timestamp,type=INT64"`
	EventType      string  `json:"eventType" parquet:"name=eventType,type=BYTE_ARRAY,convertedtype=UTF8"`
	RunID          string  `json:"runId" parquet:"name=runId,type=BYTE_ARRAY,convertedtype=UTF8"`
	Scenario       string  `json:"scenario" parquet:"name=scenario,type=BYTE_ARRAY,convertedtype=UTF8"`
	ZoneID         string  `json:"zoneId" parquet:"name=zoneId,type=BYTE_ARRAY,convertedtype=UTF8"`
	Slot           int32   `json:"slot" parquet:"name=slot,type=INT32"`
	Demand         float64 `json:"demand" parquet:"name=demand,type=DOUBLE"`
	RelaxedDrivers float64 `json:"relaxedDrivers" parquet:"name=relaxedDrivers,type=DOUBLE"`
	Drivers        int32   `json:"driversAssigned" parquet:"name=driversAssigned,type=INT32"`
	Throughput     float64 `json:"throughput" parquet:"name=throughput,type=DOUBLE"`
	Served         float64 `json:"servedDemand" parquet:"name=servedDemand,type=DOUBLE"`
	Shortfall      float64 `json:"shortfall" parquet:"name=shortfall,type=DOUBLE"`
	Utilization    float64 `json:"utilization" parquet:"name=utilization,type=DOUBLE"`
	CapacityUsage  float64 `json:"capacityUsage" parquet:"name=capacityUsage,type=DOUBLE"`
}

// AllocationRunEvent summarizes a run.
type AllocationRunEvent struct {
	Timestamp        int64   `json:"timestamp" parquet:"name=timestamp,type=INT64"`
	EventType        string  `json:"eventType" parquet:"name=eventType,type=BYTE_ARRAY,convertedtype=UTF8"`
	RunID            string  `json:"runId" parquet:"name=runId,type=BYTE_ARRAY,convertedtype=UTF8"`
	Scenario         string  `json:"scenario" parquet:"name=scenario,type=BYTE_ARRAY,convertedtype=UTF8"`
	Status           string  `json:"status" parquet:"name=status,type=BYTE_ARRAY,convertedtype=UTF8"`
	Solver           string  `json:"solver" parquet:"name=solver,type=BYTE_ARRAY,convertedtype=UTF8"`
	Degraded         bool    `json:"degraded" parquet:"name=degraded,type=BOOLEAN"`
	TotalDemand      float64 `json:"totalDemand" parquet:"name=totalDemand,type=DOUBLE"`
	TotalServed      float64 `json:"totalServed" parquet:"name=totalServed,type=DOUBLE"`
	TotalShortfall   float64 `json:"totalShortfall" parquet:"name=totalShortfall,type=DOUBLE"`
	DriverHours      float64 `json:"driverHours" parquet:"name=driverHours,type=DOUBLE"`
	DriverCost       float64 `json:"driverCost" parquet:"name=driverCost,type=DOUBLE"`
	TotalPenalty     float64 `json:"totalPenalty" parquet:"name=totalPenalty,type=DOUBLE"`
	TotalCost        float64 `json:"totalCost" parquet:"name=totalCost,type=DOUBLE"`
	RelaxedObjective float64 `json:"relaxedObjective" parquet:"name=relaxedObjective,type=DOUBLE"`
	OnTimeRate       float64 `json:"onTimeRate" parquet:"name=onTimeRate,type=DOUBLE"`
}

func NewRowEvents(report *models.SolutionReport, at time.Time) []AllocationRowEvent {
	events := make([]AllocationRowEvent, 0, len(report.Rows))
	for _, r := range report.Rows {
		events = append(events, AllocationRowEvent{
			Timestamp:      at.Unix(),
			EventType:      EventAllocationRow,
			RunID:          report.RunID,
			Scenario:       report.Scenario,
			ZoneID:         string(r.Zone),
			Slot:           int32(r.Slot),
			Demand:         r.Demand,
			RelaxedDrivers: r.RelaxedDrivers,
			Drivers:        int32(r.Drivers),
			Throughput:     r.Throughput,
			Served:         r.Served,
			Shortfall:      r.Shortfall,
			Utilization:    r.Utilization,
			CapacityUsage:  r.CapacityUsage,
		})
	}
	return events
}

func NewRunEvent(report *models.SolutionReport, at time.Time) AllocationRunEvent {
	return AllocationRunEvent{
		Timestamp:        at.Unix(),
		EventType:        EventAllocationRun,
		RunID:            report.RunID,
		Scenario:         report.Scenario,
		Status:           string(report.Status),
		Solver:           report.Solver,
		Degraded:         report.Degraded,
		TotalDemand:      report.TotalDemand,
		TotalServed:      report.TotalServed,
		TotalShortfall:   report.TotalShortfall,
		DriverHours:      report.DriverHours,
		DriverCost:       report.DriverCost,
		TotalPenalty:     report.PenaltyCost,
		TotalCost:        report.TotalCost,
		RelaxedObjective: report.RelaxedObjective,
		OnTimeRate:       report.OnTimeRate,
	}
}

type eventHeader struct {
	EventType string `json:"eventType"`
	RunID     string `json:"runId"`
	ZoneID    string `json:"zoneId"`
}

// decodeEvent turns a message back into its typed event, for sinks that need a
// fixed schema.
func decodeEvent(msg []byte) (eventHeader, interface{}, error) {
	var h eventHeader
	if err := json.Unmarshal(msg, &h); err != nil {
		return h, nil, err
	}
	switch h.EventType {
	case EventAllocationRow:
		var ev AllocationRowEvent
		err := json.Unmarshal(msg, &ev)
		return h, ev, err
	case EventAllocationRun:
		var ev AllocationRunEvent
		err := json.Unmarshal(msg, &ev)
		return h, ev, err
	default:
		return h, nil, fmt.Errorf("unknown event type: %q", h.EventType)
	}
}

func schemaObject(eventType string) (interface{}, error) {
	switch eventType {
	case EventAllocationRow:
		return new(AllocationRowEvent), nil
	case EventAllocationRun:
		return new(AllocationRunEvent), nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
