package hawkes

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
	"github.com/c9s/qrhawkes/pkg/parallel"
)

const leastSquaresModel = "least_squares"

// LeastSquares is the least-squares contrast of a multivariate Hawkes
// process with sum-of-exponentials kernels sharing one decay vector.
//
// Baselines are piecewise constant: either indexed by the observed state
// path (Options.MaxState values per node) or by the slot of a periodic
// schedule (see NewPeriodicLeastSquares). With one state this is the
// classic constant-baseline model.
//
// The contrast of node i on one realization is
//
//	R_i = int lambda_i(t)^2 dt - 2 sum_{t_ik} lambda_i(t_ik)
//
// and Loss is sum_i R_i divided by the total number of jumps.
type LeastSquares struct {
	*Options

	decays kernel.Decays
	shape  *kernel.SumExp

	// periodic baselines, zero when the state path is observed
	numBaselines int
	period       float64

	nodes   int
	weights []*Weights
}

func NewLeastSquares(decays kernel.Decays, options Options) (*LeastSquares, error) {
	options.SetDefaultValues()

	shape, err := kernel.NewSumExp(decays, options.OptimizationLevel)
	if err != nil {
		return nil, err
	}

	return &LeastSquares{
		Options: &options,
		decays:  shape.Decays(),
		shape:   shape,
	}, nil
}

// NewPeriodicLeastSquares builds a model whose baselines cycle through
// numBaselines constant values, each active for period/numBaselines.
func NewPeriodicLeastSquares(decays kernel.Decays, numBaselines int, period float64, options Options) (*LeastSquares, error) {
	if numBaselines < 1 {
		return nil, errors.Errorf("number of baselines must be positive, got %d", numBaselines)
	}

	if !(period > 0) {
		return nil, errors.Errorf("period must be positive, got %v", period)
	}

	options.MaxState = numBaselines
	m, err := NewLeastSquares(decays, options)
	if err != nil {
		return nil, err
	}

	m.numBaselines = numBaselines
	m.period = period
	return m, nil
}

func (m *LeastSquares) Decays() kernel.Decays {
	return m.decays
}

func (m *LeastSquares) Periodic() bool {
	return m.numBaselines > 0
}

func (m *LeastSquares) Layout() Layout {
	return Layout{Nodes: m.nodes, Decays: m.decays.Len(), Baselines: m.MaxState}
}

func (m *LeastSquares) NumNodes() int {
	return m.nodes
}

func (m *LeastSquares) NumCoeffs() int {
	return m.Layout().NumCoeffs()
}

func (m *LeastSquares) NumRealizations() int {
	return len(m.weights)
}

func (m *LeastSquares) NumTotalJumps() (n int) {
	for _, w := range m.weights {
		n += w.NumJumps()
	}
	return n
}

// EndTimes returns the end time of every realization.
func (m *LeastSquares) EndTimes() []float64 {
	times := make([]float64, len(m.weights))
	for r, w := range m.weights {
		times[r] = w.EndTime()
	}
	return times
}

func (m *LeastSquares) WeightsComputed() bool {
	if len(m.weights) == 0 {
		return false
	}

	for _, w := range m.weights {
		if !w.Computed() {
			return false
		}
	}
	return true
}

func (m *LeastSquares) newWeights(r *events.Realization) (*Weights, error) {
	var (
		tl  *events.Timeline
		err error
	)

	if m.Periodic() {
		tl, err = events.NewPeriodicTimeline(r, m.numBaselines, m.period)
	} else {
		tl, err = events.NewTimeline(r, m.MaxState)
	}

	if err != nil {
		return nil, err
	}

	w := NewWeights(tl, m.shape, true)
	w.model = leastSquaresModel
	return w, nil
}

// SetData replaces the data with a single realization. Weights are built
// by ComputeWeights.
func (m *LeastSquares) SetData(r *events.Realization) error {
	return m.SetDataList([]*events.Realization{r})
}

// SetDataList replaces the data with a batch of realizations sharing the
// same number of nodes.
func (m *LeastSquares) SetDataList(rs []*events.Realization) error {
	weights, nodes, err := buildBatch(rs, m.newWeights)
	if err != nil {
		return err
	}

	m.weights = weights
	m.nodes = nodes
	metrics.SetRealizationCount(leastSquaresModel, len(m.weights))
	return nil
}

// IncrementalSetData appends one realization and computes its weights right
// away.
func (m *LeastSquares) IncrementalSetData(r *events.Realization) error {
	if len(m.weights) > 0 && r.NumNodes() != m.nodes {
		return errors.Wrapf(ErrNodeMismatch, "got %d nodes, expected %d", r.NumNodes(), m.nodes)
	}

	w, err := m.newWeights(r)
	if err != nil {
		return err
	}

	if len(m.weights) == 0 && w.NumJumps() == 0 {
		return errors.Wrap(ErrNoData, "realization has no jumps")
	}

	w.Compute(m.Threads)
	m.weights = append(m.weights, w)
	m.nodes = r.NumNodes()
	metrics.SetRealizationCount(leastSquaresModel, len(m.weights))
	return nil
}

// ComputeWeights builds every cache that is not built yet.
func (m *LeastSquares) ComputeWeights() error {
	if len(m.weights) == 0 {
		return ErrNoData
	}

	for _, w := range m.weights {
		if !w.Computed() {
			w.Compute(m.Threads)
		}
	}
	return nil
}

func buildBatch(rs []*events.Realization, build func(r *events.Realization) (*Weights, error)) ([]*Weights, int, error) {
	if len(rs) == 0 {
		return nil, 0, ErrNoData
	}

	nodes := rs[0].NumNodes()
	if nodes == 0 {
		return nil, 0, ErrNoNodes
	}

	var (
		errs    error
		jumps   int
		weights = make([]*Weights, 0, len(rs))
	)

	for idx, r := range rs {
		if r.NumNodes() != nodes {
			errs = multierr.Append(errs, errors.Wrapf(ErrNodeMismatch, "realization %d has %d nodes, expected %d", idx, r.NumNodes(), nodes))
			continue
		}

		w, err := build(r)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "realization %d", idx))
			continue
		}

		jumps += w.NumJumps()
		weights = append(weights, w)
	}

	if errs != nil {
		return nil, 0, errs
	}

	if jumps == 0 {
		return nil, 0, errors.Wrap(ErrNoData, "realizations have no jumps")
	}

	for i := 0; i < nodes; i++ {
		empty := true
		for _, w := range weights {
			if w.Timeline().JumpsPerNode[i] > 0 {
				empty = false
				break
			}
		}
		if empty {
			log.Warnf("node %d has no jump in any realization", i)
		}
	}

	return weights, nodes, nil
}

func (m *LeastSquares) requireWeights() {
	if !m.WeightsComputed() {
		fail(ErrWeightsNotComputed, "call ComputeWeights first")
	}
}

// Loss returns the contrast averaged over the total number of jumps.
func (m *LeastSquares) Loss(coeffs []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(leastSquaresModel, "loss")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		return m.nodeLoss(i, coeffs)
	})
	return sum / float64(m.NumTotalJumps())
}

// LossI returns the unnormalized contrast of node i summed over the
// realizations.
func (m *LeastSquares) LossI(i int, coeffs []float64) float64 {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(leastSquaresModel, "loss_i")
	return m.nodeLoss(i, coeffs)
}

func (m *LeastSquares) nodeLoss(i int, coeffs []float64) (loss float64) {
	for _, w := range m.weights {
		loss += m.contrast(w, i, coeffs)
	}
	return loss
}

func (m *LeastSquares) contrast(w Statistics, i int, coeffs []float64) float64 {
	layout := m.Layout()
	n, U, M := m.nodes, m.decays.Len(), m.MaxState

	mu := coeffs[layout.Baseline(i, 0) : layout.Baseline(i, 0)+M]
	from, to := layout.AlphaRow(i)
	alpha := coeffs[from:to]

	var r float64
	for q := 0; q < M; q++ {
		r += mu[q]*mu[q]*w.Length(q) - 2*mu[q]*w.Count(i, q)
	}

	for j := 0; j < n; j++ {
		for u := 0; u < U; u++ {
			a := alpha[j*U+u]
			if a == 0 {
				continue
			}

			var s float64
			for q := 0; q < M; q++ {
				s += mu[q] * w.Integrated(j, q, u)
			}
			r += 2 * a * (s - w.OwnedExcitation(j, i, u))

			for jj := 0; jj < n; jj++ {
				for uu := 0; uu < U; uu++ {
					r += a * alpha[jj*U+uu] * w.CrossTotal(j, jj, u, uu)
				}
			}
		}
	}

	return r
}

// Grad writes the gradient of Loss into out.
func (m *LeastSquares) Grad(coeffs, out []float64) {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(leastSquaresModel, "grad")

	parallel.Run(m.Threads, m.nodes, func(i int) {
		m.nodeGrad(i, coeffs, out)
	})
	floats.Scale(1/float64(m.NumTotalJumps()), out)
}

// GradI writes the gradient of LossI(i) into the entries of node i in out:
// its baselines and its adjacency row. Other entries are left untouched.
func (m *LeastSquares) GradI(i int, coeffs, out []float64) {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(leastSquaresModel, "grad_i")
	m.nodeGrad(i, coeffs, out)
}

// LossAndGrad returns Loss and writes Grad in a single pass.
func (m *LeastSquares) LossAndGrad(coeffs, out []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(leastSquaresModel, "loss_and_grad")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		m.nodeGrad(i, coeffs, out)
		return m.nodeLoss(i, coeffs)
	})

	total := float64(m.NumTotalJumps())
	floats.Scale(1/total, out)
	return sum / total
}

func (m *LeastSquares) nodeGrad(i int, coeffs, out []float64) {
	layout := m.Layout()
	n, U, M := m.nodes, m.decays.Len(), m.MaxState

	muFrom := layout.Baseline(i, 0)
	mu := coeffs[muFrom : muFrom+M]
	gradMu := out[muFrom : muFrom+M]

	from, to := layout.AlphaRow(i)
	alpha := coeffs[from:to]
	gradAlpha := out[from:to]

	floats.Scale(0, gradMu)
	floats.Scale(0, gradAlpha)

	for _, w := range m.weights {
		for q := 0; q < M; q++ {
			gradMu[q] += 2*mu[q]*w.Length(q) - 2*w.Count(i, q)
		}

		for j := 0; j < n; j++ {
			for u := 0; u < U; u++ {
				a := alpha[j*U+u]

				var s float64
				for q := 0; q < M; q++ {
					integrated := w.Integrated(j, q, u)
					s += mu[q] * integrated
					gradMu[q] += 2 * a * integrated
				}

				var quad float64
				for jj := 0; jj < n; jj++ {
					for uu := 0; uu < U; uu++ {
						quad += alpha[jj*U+uu] * w.CrossTotal(j, jj, u, uu)
					}
				}

				gradAlpha[j*U+u] += 2 * (s - w.OwnedExcitation(j, i, u) + quad)
			}
		}
	}
}

// Hessian writes the constant Hessian of Loss. Row c holds the block of the
// node coefficient c belongs to, so out has NumCoeffs() * BlockWidth()
// entries; see Layout.BlockCoeff for the column order.
func (m *LeastSquares) Hessian(out []float64) {
	m.requireWeights()
	layout := m.Layout()
	checkCoeffs(out, layout.HessianSize())
	metrics.IncEvaluation(leastSquaresModel, "hessian")

	width := layout.BlockWidth()
	scale := 1 / float64(m.NumTotalJumps())

	block := m.hessianBlock()
	parallel.Run(m.Threads, m.nodes, func(i int) {
		for r := 0; r < width; r++ {
			row := layout.BlockCoeff(i, r) * width
			for c := 0; c < width; c++ {
				out[row+c] = block[r*width+c] * scale
			}
		}
	})
}

// hessianBlock returns the unnormalized per-node block, identical for every
// node.
func (m *LeastSquares) hessianBlock() []float64 {
	layout := m.Layout()
	n, U, M := m.nodes, m.decays.Len(), m.MaxState
	width := layout.BlockWidth()
	block := make([]float64, width*width)

	for _, w := range m.weights {
		for q := 0; q < M; q++ {
			block[q*width+q] += 2 * w.Length(q)

			for j := 0; j < n; j++ {
				for u := 0; u < U; u++ {
					c := M + j*U + u
					v := 2 * w.Integrated(j, q, u)
					block[q*width+c] += v
					block[c*width+q] += v
				}
			}
		}

		for j := 0; j < n; j++ {
			for u := 0; u < U; u++ {
				r := M + j*U + u
				for jj := 0; jj < n; jj++ {
					for uu := 0; uu < U; uu++ {
						block[r*width+M+jj*U+uu] += 2 * w.CrossTotal(j, jj, u, uu)
					}
				}
			}
		}
	}

	return block
}
