package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// CellSolution holds the relaxed values of one cell's decision variables.
type CellSolution struct {
	Cell      models.Cell
	Drivers   float64
	Served    float64
	Shortfall float64
}

// SolveResult is the raw solver output. Values is aligned with the model's cells and
// nil when Status is INFEASIBLE.
type SolveResult struct {
	Status         models.SolveStatus
	ObjectiveValue float64
	Values         []CellSolution
	Solver         string
	Degraded       bool
	Warnings       []string
	Infeasible     *InfeasibleModelError
	Elapsed        time.Duration
}

// Solver solves a built model within timeLimit. A zero timeLimit means no limit
// other than the context's.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model, timeLimit time.Duration) (*SolveResult, error)
}

const simplexTolerance = 1e-10

// SimplexSolver solves the continuous relaxation of each slot with gonum's simplex
// method. Slots run on up to Workers goroutines.
type SimplexSolver struct {
	Workers int
}

func NewSimplexSolver(workers int) *SimplexSolver {
	return &SimplexSolver{Workers: workers}
}

func (s *SimplexSolver) Name() string { return models.SolverSimplex }

type slotOutcome struct {
	values     []CellSolution
	objective  float64
	incumbent  bool
	infeasible bool
	reason     string
}

func (s *SimplexSolver) Solve(ctx context.Context, m *Model, timeLimit time.Duration) (*SolveResult, error) {
	if m == nil {
		return nil, errors.New("simplex: nil model")
	}
	start := time.Now()
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]slotOutcome, len(m.Slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sp := range m.Slots {
		g.Go(func() error {
			vals, obj, err := s.solveSlot(gctx, sp, m.Cost, m.Penalty)
			switch {
			case err == nil:
				outcomes[i] = slotOutcome{values: vals, objective: obj}
			case errors.Is(err, lp.ErrInfeasible):
				outcomes[i] = slotOutcome{infeasible: true, reason: err.Error()}
			case errors.Is(err, context.DeadlineExceeded):
				vals, obj := greedySlot(sp, m.Cost, m.Penalty)
				outcomes[i] = slotOutcome{values: vals, objective: obj, incumbent: true}
			default:
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, fmt.Errorf("simplex: solve: %w", ctx.Err())
		}
		return nil, fmt.Errorf("simplex: solve: %w", err)
	}

	res := &SolveResult{Status: models.StatusOptimal, Solver: s.Name()}
	incumbents := 0
	for i, out := range outcomes {
		if out.infeasible {
			res.Status = models.StatusInfeasible
			res.Infeasible = &InfeasibleModelError{Slot: m.Slots[i].Slot, Reason: out.reason}
			res.Values = nil
			res.ObjectiveValue = 0
			res.Elapsed = time.Since(start)
			return res, nil
		}
		if out.incumbent {
			incumbents++
		}
		res.Values = append(res.Values, out.values...)
		res.ObjectiveValue += out.objective
	}
	if incumbents > 0 {
		res.Status = models.StatusSuboptimal
		res.Warnings = append(res.Warnings, fmt.Sprintf("time limit reached: %d of %d slots use the greedy incumbent", incumbents, len(m.Slots)))
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

type simplexReply struct {
	x   []float64
	obj float64
	err error
}

// solveSlot runs the simplex method from the slot's planned basis. The call runs
// in its own goroutine so that the deadline can abandon it; it only touches
// slot-local state and, started at an optimal basis, returns without pivoting.
func (s *SimplexSolver) solveSlot(ctx context.Context, sp *SlotProblem, cost, penalty float64) ([]CellSolution, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	rows, _ := sp.A.Dims()
	hasPlan := len(sp.Basis) == rows && len(sp.Plan) == len(sp.Cells)

	// gonum panics on a start that round-off pushed below zero; the planned
	// point is then returned as is. Slots without a plan start from Phase I.
	var (
		basis []int
		bound float64
	)
	if hasPlan {
		var planned []CellSolution
		planned, bound = planSolution(sp, cost, penalty)
		if !startFeasible(sp) {
			return planned, bound, nil
		}
		basis = append([]int(nil), sp.Basis...)
	}

	reply := make(chan simplexReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- simplexReply{err: &SolverUnavailableError{Solver: s.Name(), Slot: sp.Slot, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()

		scale := objectiveScale(sp.C)
		c := make([]float64, len(sp.C))
		for i, v := range sp.C {
			c[i] = v / scale
		}
		obj, x, err := lp.Simplex(c, sp.A, sp.B, simplexTolerance, basis)
		reply <- simplexReply{x: x, obj: obj * scale, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-reply:
		var unavailable *SolverUnavailableError
		switch {
		case r.err == nil:
		case errors.Is(r.err, lp.ErrInfeasible):
			return nil, 0, r.err
		case errors.As(r.err, &unavailable):
			return nil, 0, r.err
		default:
			return nil, 0, &SolverUnavailableError{Solver: s.Name(), Slot: sp.Slot, Err: r.err}
		}
		if hasPlan && math.Abs(r.obj-bound) > objectiveTolerance*math.Max(1, math.Abs(bound)) {
			return nil, 0, &SolverUnavailableError{Solver: s.Name(), Slot: sp.Slot,
				Err: fmt.Errorf("objective %g disagrees with the slot optimum %g", r.obj, bound)}
		}
		return extract(sp, r.x), r.obj, nil
	}
}

// objectiveTolerance is the relative gap allowed between the simplex objective
// and the closed-form slot optimum.
const objectiveTolerance = 1e-6

// startTolerance matches the slack gonum allows on a supplied starting basis.
const startTolerance = 1e-13

// startFeasible solves for the basic values of the planned basis the same way
// lp.Simplex does and reports whether it would accept them.
func startFeasible(sp *SlotProblem) bool {
	rows, _ := sp.A.Dims()
	ab := mat.NewDense(rows, rows, nil)
	for j, col := range sp.Basis {
		ab.SetCol(j, mat.Col(nil, col, sp.A))
	}
	xb := mat.NewVecDense(rows, nil)
	if err := xb.SolveVec(ab, mat.NewVecDense(rows, sp.B)); err != nil {
		return false
	}
	for i := 0; i < rows; i++ {
		if xb.AtVec(i) < -startTolerance {
			return false
		}
	}
	return true
}

// objectiveScale keeps reduced costs near unit size so the optimality test runs
// against a relative tolerance.
func objectiveScale(c []float64) float64 {
	scale := 0.0
	for _, v := range c {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		return 1
	}
	return scale
}

func extract(sp *SlotProblem, x []float64) []CellSolution {
	out := make([]CellSolution, len(sp.Cells))
	for i, cv := range sp.Cells {
		out[i] = CellSolution{
			Cell:      cv.Cell,
			Drivers:   clampZero(x[cv.Drivers]),
			Served:    clampZero(x[cv.Served]),
			Shortfall: clampZero(x[cv.Shortfall]),
		}
	}
	return out
}

// clampZero removes round-off below zero.
func clampZero(v float64) float64 {
	if v < 0 || math.Abs(v) < 1e-12 {
		return 0
	}
	return v
}
