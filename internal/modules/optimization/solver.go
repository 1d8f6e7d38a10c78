package optimization

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/allocator/pkg/formulas"
)

const (
	armijoSlope = 1e-4
	minStep     = 1e-20
	maxStep     = 1e10
)

// Iterate describes one accepted step of the solver.
type Iterate struct {
	Iteration int
	F         float64
	X         []float64
}

// SimplexSolver minimises a smooth function over the weight simplex
// {w : 0 <= w_i <= 1, sum(w) = 1} by projected gradient descent with
// Barzilai-Borwein step lengths and Armijo backtracking.
//
// Every iterate is feasible and the objective never increases, so the result
// is never worse than the starting point.
type SimplexSolver struct {
	// MaxIterations caps the number of accepted steps.
	MaxIterations int
	// GradientThreshold stops the search once the projected gradient's
	// infinity norm falls to or below it.
	GradientThreshold float64
	// FunctionTolerance stops the search once an accepted step improves F by
	// no more than FunctionTolerance·(1+|F|).
	FunctionTolerance float64
	// Runtime bounds wall-clock time; zero means unbounded.
	Runtime time.Duration
	// Recorder, when set, is called after every accepted step.
	Recorder func(Iterate)
}

// Minimize runs the solver from initial, which is projected onto the simplex
// first. A problem without Grad uses central finite differences.
//
// Non-convergence is not an error: the best iterate is returned with a
// Status that says why the search stopped. A non-finite loss or gradient
// aborts with a SolverDivergedError.
func (s SimplexSolver) Minimize(ctx context.Context, problem optimize.Problem, initial []float64) (*optimize.Result, error) {
	start := time.Now()
	n := len(initial)

	var stats optimize.Stats
	eval := func(x []float64) float64 {
		stats.FuncEvaluations++
		return problem.Func(x)
	}
	gradient := func(dst, x []float64) {
		stats.GradEvaluations++
		if problem.Grad != nil {
			problem.Grad(dst, x)
			return
		}
		fd.Gradient(dst, problem.Func, x, &fd.Settings{Formula: fd.Central})
	}

	x := projectSimplex(nil, initial)
	f := eval(x)
	if !formulas.IsFinite(f) {
		return nil, &SolverDivergedError{Iteration: 0, Quantity: "loss", X: x}
	}
	g := make([]float64, n)
	gradient(g, x)
	if !allFinite(g) {
		return nil, &SolverDivergedError{Iteration: 0, Quantity: "gradient", X: x}
	}

	finish := func(status optimize.Status) *optimize.Result {
		stats.Runtime = time.Since(start)
		return &optimize.Result{
			Location: optimize.Location{X: x, F: f, Gradient: g},
			Stats:    stats,
			Status:   status,
		}
	}

	var (
		trial   = make([]float64, n)
		shifted = make([]float64, n)
		gNew    = make([]float64, n)
		sVec    = make([]float64, n)
		yVec    = make([]float64, n)
		step    = 1.0
	)

	for {
		if ctx.Err() != nil || (s.Runtime > 0 && time.Since(start) >= s.Runtime) {
			return finish(optimize.RuntimeLimit), nil
		}

		if projectedGradientNorm(x, g, shifted, trial) <= s.GradientThreshold {
			return finish(optimize.GradientThreshold), nil
		}
		if stats.MajorIterations >= s.MaxIterations {
			return finish(optimize.IterationLimit), nil
		}

		// Backtrack along the projection arc until the Armijo condition holds.
		var fTrial float64
		for {
			floats.AddScaledTo(shifted, x, -step, g)
			projectSimplex(trial, shifted)
			fTrial = eval(trial)
			if !formulas.IsFinite(fTrial) {
				return nil, &SolverDivergedError{Iteration: stats.MajorIterations + 1, Quantity: "loss", X: append([]float64(nil), trial...)}
			}

			floats.SubTo(sVec, trial, x)
			if fTrial <= f+armijoSlope*floats.Dot(g, sVec) {
				break
			}
			step /= 2
			if step < minStep {
				return finish(optimize.StepConvergence), nil
			}
		}

		gradient(gNew, trial)
		if !allFinite(gNew) {
			return nil, &SolverDivergedError{Iteration: stats.MajorIterations + 1, Quantity: "gradient", X: append([]float64(nil), trial...)}
		}

		// Barzilai-Borwein length for the next trial step.
		floats.SubTo(yVec, gNew, g)
		if sy := floats.Dot(sVec, yVec); sy > 0 {
			step = math.Min(math.Max(floats.Dot(sVec, sVec)/sy, minStep), maxStep)
		} else {
			step = 1
		}

		decrease := f - fTrial
		x, trial = trial, x
		g, gNew = gNew, g
		f = fTrial
		stats.MajorIterations++

		if s.Recorder != nil {
			s.Recorder(Iterate{Iteration: stats.MajorIterations, F: f, X: append([]float64(nil), x...)})
		}

		if decrease <= s.FunctionTolerance*(1+math.Abs(f)) {
			return finish(optimize.FunctionConvergence), nil
		}
	}
}

// projectedGradientNorm returns ||x - P(x - g)||∞, which is zero exactly at a
// stationary point of the constrained problem.
func projectedGradientNorm(x, g, shifted, projected []float64) float64 {
	floats.SubTo(shifted, x, g)
	projectSimplex(projected, shifted)
	floats.Sub(projected, x)
	return floats.Norm(projected, math.Inf(1))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !formulas.IsFinite(x) {
			return false
		}
	}
	return true
}
