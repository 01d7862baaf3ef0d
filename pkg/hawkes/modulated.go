package hawkes

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
	"github.com/c9s/qrhawkes/pkg/parallel"
)

const modulatedModel = "modulated_log_likelihood"

// ModulatedLogLikelihood is the negative log-likelihood of a Hawkes process
// whose whole intensity is scaled by a per-node factor of the current state:
//
//	lambda_i(t) = f_i[n(t-)] (mu_i + sum_{j,u} alpha_iju g_ju(t))
//
// The coefficient vector is the LogLikelihood one followed by the factors
// f_iq (see Layout.Modulator). Loss is the per-node
// int lambda_i - T - sum_k log lambda_i(t_ik) summed over nodes and divided
// by the total number of jumps.
type ModulatedLogLikelihood struct {
	*Options

	decays kernel.Decays
	shape  *kernel.SumExp

	nodes   int
	weights []*Weights
}

func NewModulatedLogLikelihood(decays kernel.Decays, options Options) (*ModulatedLogLikelihood, error) {
	options.SetDefaultValues()

	shape, err := kernel.NewSumExp(decays, options.OptimizationLevel)
	if err != nil {
		return nil, err
	}

	return &ModulatedLogLikelihood{
		Options: &options,
		decays:  shape.Decays(),
		shape:   shape,
	}, nil
}

func (m *ModulatedLogLikelihood) Decays() kernel.Decays {
	return m.decays
}

func (m *ModulatedLogLikelihood) Layout() Layout {
	return Layout{Nodes: m.nodes, Decays: m.decays.Len(), Baselines: 1, Modulators: m.MaxState}
}

func (m *ModulatedLogLikelihood) NumNodes() int {
	return m.nodes
}

func (m *ModulatedLogLikelihood) NumCoeffs() int {
	return m.Layout().NumCoeffs()
}

func (m *ModulatedLogLikelihood) NumRealizations() int {
	return len(m.weights)
}

func (m *ModulatedLogLikelihood) NumTotalJumps() (n int) {
	for _, w := range m.weights {
		n += w.NumJumps()
	}
	return n
}

func (m *ModulatedLogLikelihood) WeightsComputed() bool {
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

func (m *ModulatedLogLikelihood) newWeights(r *events.Realization) (*Weights, error) {
	tl, err := events.NewTimeline(r, m.MaxState)
	if err != nil {
		return nil, err
	}

	w := NewWeights(tl, m.shape, false)
	w.model = modulatedModel
	return w, nil
}

func (m *ModulatedLogLikelihood) SetData(r *events.Realization) error {
	return m.SetDataList([]*events.Realization{r})
}

func (m *ModulatedLogLikelihood) SetDataList(rs []*events.Realization) error {
	weights, nodes, err := buildBatch(rs, m.newWeights)
	if err != nil {
		return err
	}

	m.weights = weights
	m.nodes = nodes
	metrics.SetRealizationCount(modulatedModel, len(m.weights))
	return nil
}

func (m *ModulatedLogLikelihood) IncrementalSetData(r *events.Realization) error {
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
	metrics.SetRealizationCount(modulatedModel, len(m.weights))
	return nil
}

func (m *ModulatedLogLikelihood) ComputeWeights() error {
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

func (m *ModulatedLogLikelihood) requireWeights() {
	if !m.WeightsComputed() {
		fail(ErrWeightsNotComputed, "call ComputeWeights first")
	}
}

type modulatedCoeffs struct {
	mu     float64
	alpha  []float64
	factor []float64
}

func (m *ModulatedLogLikelihood) split(i int, coeffs []float64) modulatedCoeffs {
	layout := m.Layout()
	from, to := layout.AlphaRow(i)
	f := layout.Modulator(i, 0)
	return modulatedCoeffs{
		mu:     coeffs[layout.Baseline(i, 0)],
		alpha:  coeffs[from:to],
		factor: coeffs[f : f+m.MaxState],
	}
}

// excitation fills x with g_ju(t_k) for every (j, u) and returns
// mu + alpha . x.
func (m *ModulatedLogLikelihood) excitation(w *Weights, k int, c modulatedCoeffs, x []float64) float64 {
	U := m.decays.Len()
	for j := 0; j < m.nodes; j++ {
		for u := 0; u < U; u++ {
			x[j*U+u] = w.Excitation(j, k, u)
		}
	}
	return c.mu + floats.Dot(c.alpha, x)
}

// compensator returns mu L_q + sum alpha_ju G_j[q][u] for state q.
func (m *ModulatedLogLikelihood) compensator(w *Weights, q int, c modulatedCoeffs) float64 {
	U := m.decays.Len()
	v := c.mu * w.Length(q)
	for j := 0; j < m.nodes; j++ {
		for u := 0; u < U; u++ {
			v += c.alpha[j*U+u] * w.Integrated(j, q, u)
		}
	}
	return v
}

func (m *ModulatedLogLikelihood) Loss(coeffs []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(modulatedModel, "loss")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		return m.nodeLoss(i, coeffs)
	})
	return sum / float64(m.NumTotalJumps())
}

// LossI returns the unnormalized loss of node i summed over the
// realizations.
func (m *ModulatedLogLikelihood) LossI(i int, coeffs []float64) float64 {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(modulatedModel, "loss_i")
	return m.nodeLoss(i, coeffs)
}

func (m *ModulatedLogLikelihood) nodeLoss(i int, coeffs []float64) (loss float64) {
	c := m.split(i, coeffs)
	x := make([]float64, len(c.alpha))

	for _, w := range m.weights {
		tl := w.Timeline()
		loss -= w.EndTime()
		for q := 0; q < m.MaxState; q++ {
			loss += c.factor[q] * m.compensator(w, q, c)
		}

		for _, k := range w.JumpIndices(i) {
			s := m.excitation(w, k, c, x)
			intensity := c.factor[tl.States[k-1]] * s
			if intensity <= 0 {
				fail(ErrNonPositiveIntensity, "node %d at %v: %v", i, tl.Times[k], intensity)
			}
			loss -= math.Log(intensity)
		}
	}

	return loss
}

func (m *ModulatedLogLikelihood) Grad(coeffs, out []float64) {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(modulatedModel, "grad")

	parallel.Run(m.Threads, m.nodes, func(i int) {
		m.nodeGrad(i, coeffs, out)
	})
	floats.Scale(1/float64(m.NumTotalJumps()), out)
}

// GradI writes the gradient of LossI(i) into the entries of node i: its
// baseline, adjacency row and state factors.
func (m *ModulatedLogLikelihood) GradI(i int, coeffs, out []float64) {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(modulatedModel, "grad_i")
	m.nodeGrad(i, coeffs, out)
}

func (m *ModulatedLogLikelihood) LossAndGrad(coeffs, out []float64) float64 {
	loss := m.Loss(coeffs)
	m.Grad(coeffs, out)
	return loss
}

func (m *ModulatedLogLikelihood) nodeGrad(i int, coeffs, out []float64) {
	layout := m.Layout()
	U, M := m.decays.Len(), m.MaxState
	c := m.split(i, coeffs)
	x := make([]float64, len(c.alpha))

	from, to := layout.AlphaRow(i)
	gradAlpha := out[from:to]
	f := layout.Modulator(i, 0)
	gradFactor := out[f : f+M]
	gradMu := 0.0

	floats.Scale(0, gradAlpha)
	floats.Scale(0, gradFactor)

	for _, w := range m.weights {
		tl := w.Timeline()
		for q := 0; q < M; q++ {
			gradMu += c.factor[q] * w.Length(q)
			for j := 0; j < m.nodes; j++ {
				for u := 0; u < U; u++ {
					gradAlpha[j*U+u] += c.factor[q] * w.Integrated(j, q, u)
				}
			}

			gradFactor[q] += m.compensator(w, q, c)
			if count := w.Count(i, q); count > 0 {
				if c.factor[q] <= 0 {
					fail(ErrNonPositiveIntensity, "node %d state %d factor %v", i, q, c.factor[q])
				}
				gradFactor[q] -= count / c.factor[q]
			}
		}

		for _, k := range w.JumpIndices(i) {
			s := m.excitation(w, k, c, x)
			if s <= 0 {
				fail(ErrNonPositiveIntensity, "node %d at %v: %v", i, tl.Times[k], s)
			}
			gradMu -= 1 / s
			floats.AddScaled(gradAlpha, -1/s, x)
		}
	}

	out[layout.Baseline(i, 0)] = gradMu
}
