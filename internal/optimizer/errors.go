package optimizer

import (
	"fmt"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// InvalidConfigError is returned by Build when a capacity parameter cannot produce a
// meaningful model.
type InvalidConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// InfeasibleModelError names the first slot the solver proved infeasible.
type InfeasibleModelError struct {
	Slot   models.TimeSlot
	Reason string
}

func (e *InfeasibleModelError) Error() string {
	return fmt.Sprintf("model infeasible at slot %d: %s", e.Slot, e.Reason)
}

// SolverUnavailableError means the solver crashed or failed numerically. The
// model itself may be fine; a different solver can still be tried.
type SolverUnavailableError struct {
	Solver string
	Slot   models.TimeSlot
	Err    error
}

func (e *SolverUnavailableError) Error() string {
	return fmt.Sprintf("solver %s unavailable at slot %d: %v", e.Solver, e.Slot, e.Err)
}

func (e *SolverUnavailableError) Unwrap() error {
	return e.Err
}

type InterpretationError struct {
	Reason string
	Err    error
}

func (e *InterpretationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpret: %s: %v", e.Reason, e.Err)
	}
	return "interpret: " + e.Reason
}

func (e *InterpretationError) Unwrap() error {
	return e.Err
}
