package optimization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidObjective is wrapped by InvalidObjectiveError.
	ErrInvalidObjective = errors.New("invalid objective")
	// ErrSolverDiverged is wrapped by SolverDivergedError.
	ErrSolverDiverged = errors.New("solver diverged")
)

// InvalidObjectiveError reports an unsupported objective selector.
type InvalidObjectiveError struct {
	Objective string
}

func (e *InvalidObjectiveError) Error() string {
	return fmt.Sprintf("invalid objective %q: expected %q or %q", e.Objective, MaxSharpe, MinVolatility)
}

func (e *InvalidObjectiveError) Unwrap() error { return ErrInvalidObjective }

// SolverDivergedError reports a non-finite loss or gradient during the search.
type SolverDivergedError struct {
	Iteration int
	Quantity  string // "loss" or "gradient"
	X         []float64
}

func (e *SolverDivergedError) Error() string {
	return fmt.Sprintf("solver diverged at iteration %d: non-finite %s", e.Iteration, e.Quantity)
}

func (e *SolverDivergedError) Unwrap() error { return ErrSolverDiverged }
