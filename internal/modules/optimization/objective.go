package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/modules/returns"
)

// Objective selects what the optimizer minimises.
type Objective string

const (
	// MaxSharpe maximises the Sharpe ratio by minimising its negation.
	MaxSharpe Objective = "sharpe"
	// MinVolatility minimises annualised volatility.
	MinVolatility Objective = "min_vol"
)

// ParseObjective validates an objective selector. Only the exact values
// "sharpe" and "min_vol" are accepted.
func ParseObjective(s string) (Objective, error) {
	switch o := Objective(s); o {
	case MaxSharpe, MinVolatility:
		return o, nil
	default:
		return "", &InvalidObjectiveError{Objective: s}
	}
}

// Loss is a scalar function of a weight vector together with its gradient.
type Loss interface {
	Evaluate(weights []float64) float64
	Gradient(grad, weights []float64)
}

// NewLoss builds the loss for objective over m. The loss keeps a reference to
// m and never modifies it.
func NewLoss(objective Objective, m *returns.ReturnsMatrix, calc returns.Calculator) (Loss, error) {
	base := newPortfolioMoments(m, calc)
	switch objective {
	case MaxSharpe:
		return &sharpeLoss{base}, nil
	case MinVolatility:
		return &volatilityLoss{base}, nil
	default:
		return nil, &InvalidObjectiveError{Objective: string(objective)}
	}
}

// portfolioMoments evaluates annual return and volatility of a weighted
// portfolio together with their gradients.
//
// With K trading days, T rows, p = Rw, d = p - mean(p):
//
//	A = K·mean(p)          ∇A = K·μ
//	V = sqrt(K·d·d/T)      ∇V = K·R'd / (T·V)
type portfolioMoments struct {
	matrix *returns.ReturnsMatrix
	calc   returns.Calculator
	means  []float64
}

func newPortfolioMoments(m *returns.ReturnsMatrix, calc returns.Calculator) portfolioMoments {
	return portfolioMoments{matrix: m, calc: calc, means: m.ColumnMeans()}
}

func (pm portfolioMoments) metrics(weights []float64) returns.Metrics {
	p, err := returns.PortfolioReturn(pm.matrix, weights)
	if err != nil {
		return returns.Metrics{AnnualReturn: math.NaN(), Volatility: math.NaN()}
	}
	return pm.calc.SeriesMetrics(p)
}

// gradients fills dA and dV and returns A and V.
func (pm portfolioMoments) gradients(weights, dA, dV []float64) (annual, vol float64) {
	days := pm.calc.Days()
	rows := float64(pm.matrix.Rows())

	var p mat.VecDense
	p.MulVec(pm.matrix.Matrix(), mat.NewVecDense(len(weights), append([]float64(nil), weights...)))
	deviations := make([]float64, p.Len())
	for t := range deviations {
		deviations[t] = p.AtVec(t)
	}
	mean := floats.Sum(deviations) / rows
	floats.AddConst(-mean, deviations)

	annual = days * mean
	vol = math.Sqrt(days * floats.Dot(deviations, deviations) / rows)

	floats.ScaleTo(dA, days, pm.means)

	if vol == 0 {
		// Volatility is not differentiable at zero; use the zero subgradient.
		for i := range dV {
			dV[i] = 0
		}
		return annual, vol
	}
	var cov mat.VecDense
	cov.MulVec(pm.matrix.Matrix().T(), mat.NewVecDense(len(deviations), deviations))
	scale := days / (rows * vol)
	for i := range dV {
		dV[i] = scale * cov.AtVec(i)
	}
	return annual, vol
}

type volatilityLoss struct {
	portfolioMoments
}

func (l *volatilityLoss) Evaluate(weights []float64) float64 {
	return l.metrics(weights).Volatility
}

func (l *volatilityLoss) Gradient(grad, weights []float64) {
	dA := make([]float64, len(weights))
	l.gradients(weights, dA, grad)
}

type sharpeLoss struct {
	portfolioMoments
}

// Evaluate returns the negated Sharpe ratio, or 0 where it is undefined.
func (l *sharpeLoss) Evaluate(weights []float64) float64 {
	return -l.metrics(weights).Sharpe.Float64()
}

// Gradient of -A/V: (A·∇V - V·∇A) / V².
func (l *sharpeLoss) Gradient(grad, weights []float64) {
	dA := make([]float64, len(weights))
	dV := make([]float64, len(weights))
	annual, vol := l.gradients(weights, dA, dV)
	if vol == 0 {
		for i := range grad {
			grad[i] = 0
		}
		return
	}
	v2 := vol * vol
	for i := range grad {
		grad[i] = (annual*dV[i] - vol*dA[i]) / v2
	}
}
