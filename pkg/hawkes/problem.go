package hawkes

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Objective is what an outer optimizer needs from a model.
type Objective interface {
	NumCoeffs() int
	Loss(coeffs []float64) float64
	Grad(coeffs, out []float64)
}

var (
	_ Objective = (*LeastSquares)(nil)
	_ Objective = (*LogLikelihood)(nil)
	_ Objective = (*ModulatedLogLikelihood)(nil)
)

// HessianBlock returns the constant Hessian block shared by every node as
// a symmetric matrix of size Layout().BlockWidth().
func (m *LeastSquares) HessianBlock() *mat.SymDense {
	m.requireWeights()

	width := m.Layout().BlockWidth()
	block := m.hessianBlock()
	floats.Scale(1/float64(m.NumTotalJumps()), block)
	return symmetric(width, block)
}

// HessianBlock returns the Hessian block of node i at coeffs.
func (m *LogLikelihood) HessianBlock(i int, coeffs []float64) *mat.SymDense {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())

	width := m.Layout().BlockWidth()
	block := m.hessianBlock(i, coeffs)
	floats.Scale(1/float64(m.NumTotalJumps()), block)
	return symmetric(width, block)
}

func symmetric(width int, block []float64) *mat.SymDense {
	sym := mat.NewSymDense(width, nil)
	for r := 0; r < width; r++ {
		for c := r; c < width; c++ {
			sym.SetSym(r, c, block[r*width+c])
		}
	}
	return sym
}

// scatterHessian expands per-node blocks into the full Hessian over all
// coefficients. Entries across nodes are zero.
func scatterHessian(layout Layout, dst *mat.SymDense, block func(i int) *mat.SymDense) {
	n := dst.Symmetric()
	for r := 0; r < n; r++ {
		for c := r; c < n; c++ {
			dst.SetSym(r, c, 0)
		}
	}

	width := layout.BlockWidth()
	for i := 0; i < layout.Nodes; i++ {
		b := block(i)
		for r := 0; r < width; r++ {
			for c := r; c < width; c++ {
				dst.SetSym(layout.BlockCoeff(i, r), layout.BlockCoeff(i, c), b.At(r, c))
			}
		}
	}
}

// NewProblem adapts a model to gonum's optimize package. Models with a
// Hessian expose it so Newton-type methods can be used. Evaluations where
// the intensity is not positive report +Inf so that line searches back off.
func NewProblem(obj Objective) optimize.Problem {
	p := optimize.Problem{
		Func: func(x []float64) (loss float64) {
			defer recoverIntensity(func() { loss = math.Inf(1) })
			return obj.Loss(x)
		},
		Grad: func(grad, x []float64) {
			defer recoverIntensity(func() {
				for i := range grad {
					grad[i] = math.NaN()
				}
			})
			obj.Grad(x, grad)
		},
	}

	switch m := obj.(type) {
	case *LeastSquares:
		p.Hess = func(hess *mat.SymDense, x []float64) {
			block := m.HessianBlock()
			scatterHessian(m.Layout(), hess, func(int) *mat.SymDense { return block })
		}

	case *LogLikelihood:
		p.Hess = func(hess *mat.SymDense, x []float64) {
			scatterHessian(m.Layout(), hess, func(i int) *mat.SymDense { return m.HessianBlock(i, x) })
		}
	}

	return p
}

func recoverIntensity(onFailure func()) {
	r := recover()
	if r == nil {
		return
	}

	if err, ok := r.(error); ok && errors.Is(err, ErrNonPositiveIntensity) {
		onFailure()
		return
	}

	panic(r)
}

// FitSettings controls Minimize.
type FitSettings struct {
	MaxIterations     int     `json:"maxIterations" yaml:"maxIterations"`
	GradientThreshold float64 `json:"gradientThreshold" yaml:"gradientThreshold"`
}

// SetDefaultValues applies default settings to unspecified fields
func (s *FitSettings) SetDefaultValues() {
	if s.MaxIterations == 0 {
		s.MaxIterations = 200
	}

	if s.GradientThreshold == 0 {
		s.GradientThreshold = 1e-8
	}
}

// Minimize runs L-BFGS on obj from x0.
func Minimize(obj Objective, x0 []float64, settings FitSettings) (*optimize.Result, error) {
	settings.SetDefaultValues()
	checkCoeffs(x0, obj.NumCoeffs())

	result, err := optimize.Minimize(NewProblem(obj), x0, &optimize.Settings{
		MajorIterations:   settings.MaxIterations,
		GradientThreshold: settings.GradientThreshold,
	}, &optimize.LBFGS{})

	if result != nil {
		log.Infof("optimization finished: status %s, loss %v, %d iterations", result.Status, result.F, result.MajorIterations)
	}

	return result, err
}
