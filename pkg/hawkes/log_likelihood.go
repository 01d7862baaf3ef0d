package hawkes

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
	"github.com/c9s/qrhawkes/pkg/parallel"
)

const logLikelihoodModel = "log_likelihood"

// LogLikelihood is the negative log-likelihood of a multivariate Hawkes
// process with sum-of-exponentials kernels, taken relative to a unit rate
// Poisson process:
//
//	L_i = int (lambda_i(t) - 1) dt - sum_{t_ik} log lambda_i(t_ik)
//
// Loss is sum_i L_i over the total number of jumps. The sampled variants
// LossI and GradI act on a single jump so that their average over
// [0, RandMax()) equals Loss and Grad, as long as every node jumps at least
// once.
type LogLikelihood struct {
	*Options

	decays kernel.Decays
	shape  *kernel.SumExp

	nodes   int
	weights []*likelihoodWeights

	// sampleOffsets[r*nodes+i] is the first sample index of node i in
	// realization r
	sampleOffsets []int
}

func NewLogLikelihood(decays kernel.Decays, options Options) (*LogLikelihood, error) {
	options.SetDefaultValues()

	shape, err := kernel.NewSumExp(decays, options.OptimizationLevel)
	if err != nil {
		return nil, err
	}

	return &LogLikelihood{
		Options: &options,
		decays:  shape.Decays(),
		shape:   shape,
	}, nil
}

func (m *LogLikelihood) Decays() kernel.Decays {
	return m.decays
}

func (m *LogLikelihood) Layout() Layout {
	return Layout{Nodes: m.nodes, Decays: m.decays.Len(), Baselines: 1}
}

func (m *LogLikelihood) NumNodes() int {
	return m.nodes
}

func (m *LogLikelihood) NumCoeffs() int {
	return m.Layout().NumCoeffs()
}

func (m *LogLikelihood) NumRealizations() int {
	return len(m.weights)
}

func (m *LogLikelihood) NumTotalJumps() (n int) {
	for _, w := range m.weights {
		n += w.numJumps()
	}
	return n
}

// RandMax is the number of samples LossI and GradI accept.
func (m *LogLikelihood) RandMax() int {
	return m.NumTotalJumps()
}

func (m *LogLikelihood) WeightsComputed() bool {
	if len(m.weights) == 0 {
		return false
	}

	for _, w := range m.weights {
		if !w.Computed {
			return false
		}
	}
	return true
}

func (m *LogLikelihood) SetData(r *events.Realization) error {
	return m.SetDataList([]*events.Realization{r})
}

func (m *LogLikelihood) SetDataList(rs []*events.Realization) error {
	if len(rs) == 0 {
		return ErrNoData
	}

	nodes := rs[0].NumNodes()
	weights := make([]*likelihoodWeights, 0, len(rs))
	for idx, r := range rs {
		if r.NumNodes() != nodes {
			return errors.Wrapf(ErrNodeMismatch, "realization %d has %d nodes, expected %d", idx, r.NumNodes(), nodes)
		}

		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "realization %d", idx)
		}

		weights = append(weights, newLikelihoodWeights(r))
	}

	m.weights = weights
	m.nodes = nodes
	if m.NumTotalJumps() == 0 {
		m.weights = nil
		return errors.Wrap(ErrNoData, "realizations have no jumps")
	}

	m.indexSamples()
	metrics.SetRealizationCount(logLikelihoodModel, len(m.weights))
	return nil
}

// IncrementalSetData appends one realization and computes its weights right
// away.
func (m *LogLikelihood) IncrementalSetData(r *events.Realization) error {
	if len(m.weights) > 0 && r.NumNodes() != m.nodes {
		return errors.Wrapf(ErrNodeMismatch, "got %d nodes, expected %d", r.NumNodes(), m.nodes)
	}

	if err := r.Validate(); err != nil {
		return err
	}

	if len(m.weights) == 0 && r.NumJumps() == 0 {
		return errors.Wrap(ErrNoData, "realization has no jumps")
	}

	w := newLikelihoodWeights(r)
	w.compute(m.shape, m.Threads)

	m.weights = append(m.weights, w)
	m.nodes = r.NumNodes()
	m.indexSamples()
	metrics.SetRealizationCount(logLikelihoodModel, len(m.weights))
	return nil
}

func (m *LogLikelihood) ComputeWeights() error {
	if len(m.weights) == 0 {
		return ErrNoData
	}

	for _, w := range m.weights {
		if !w.Computed {
			w.compute(m.shape, m.Threads)
		}
	}
	return nil
}

func (m *LogLikelihood) indexSamples() {
	m.sampleOffsets = make([]int, 0, len(m.weights)*m.nodes)
	offset := 0
	for _, w := range m.weights {
		for _, c := range w.Jumps {
			m.sampleOffsets = append(m.sampleOffsets, offset)
			offset += c
		}
	}
}

// sample maps a sample index to realization r, node i and jump k.
func (m *LogLikelihood) sample(s int) (r, i, k int) {
	if s < 0 || s >= m.RandMax() {
		fail(ErrSampleIndex, "sample %d of %d", s, m.RandMax())
	}

	// last slot whose offset is <= s, skipping empty nodes
	idx := sort.Search(len(m.sampleOffsets), func(x int) bool {
		return m.sampleOffsets[x] > s
	}) - 1

	return idx / m.nodes, idx % m.nodes, s - m.sampleOffsets[idx]
}

func (m *LogLikelihood) requireWeights() {
	if !m.WeightsComputed() {
		fail(ErrWeightsNotComputed, "call ComputeWeights first")
	}
}

func (m *LogLikelihood) split(i int, coeffs []float64) (mu float64, alpha []float64) {
	layout := m.Layout()
	from, to := layout.AlphaRow(i)
	return coeffs[layout.Baseline(i, 0)], coeffs[from:to]
}

func (m *LogLikelihood) intensity(i, k int, mu float64, alpha, excitation []float64) float64 {
	s := mu + floats.Dot(alpha, excitation)
	if s <= 0 {
		fail(ErrNonPositiveIntensity, "node %d jump %d: %v", i, k, s)
	}
	return s
}

func (m *LogLikelihood) Loss(coeffs []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "loss")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		return m.nodeLoss(i, coeffs)
	})
	return sum / float64(m.NumTotalJumps())
}

// NodeLoss returns the unnormalized negative log-likelihood of node i
// summed over the realizations.
func (m *LogLikelihood) NodeLoss(i int, coeffs []float64) float64 {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	return m.nodeLoss(i, coeffs)
}

func (m *LogLikelihood) nodeLoss(i int, coeffs []float64) (loss float64) {
	mu, alpha := m.split(i, coeffs)
	width := len(alpha)

	for _, w := range m.weights {
		nw := w.Nodes[i]
		loss += (mu-1)*w.EndTime + floats.Dot(alpha, nw.SumIntegrated)
		for k := 0; k < w.Jumps[i]; k++ {
			loss -= math.Log(m.intensity(i, k, mu, alpha, nw.Excitation[k*width:(k+1)*width]))
		}
	}

	return loss
}

// LossI returns the contribution of sample s: the compensator since the
// previous jump of the same node minus the log intensity at the jump. The
// last jump of a node also carries the compensator up to the end time, and
// sample 0 carries the whole compensator of every node without jumps in a
// realization, so that the samples average to Loss.
func (m *LogLikelihood) LossI(s int, coeffs []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "loss_i")

	r, i, k := m.sample(s)
	mu, alpha := m.split(i, coeffs)
	width := len(alpha)

	w := m.weights[r]
	nw := w.Nodes[i]

	loss := (mu-1)*nw.Gaps[k] + floats.Dot(alpha, nw.Integrated[k*width:(k+1)*width])
	loss -= math.Log(m.intensity(i, k, mu, alpha, nw.Excitation[k*width:(k+1)*width]))

	if last := w.Jumps[i]; k == last-1 {
		loss += (mu-1)*nw.Gaps[last] + floats.Dot(alpha, nw.Integrated[last*width:(last+1)*width])
	}

	if s == 0 {
		loss += m.emptyNodesLoss(coeffs)
	}

	return loss
}

// emptyNodesLoss sums the compensators of the nodes that have no jump in a
// realization. No sample belongs to them.
func (m *LogLikelihood) emptyNodesLoss(coeffs []float64) (loss float64) {
	for _, w := range m.weights {
		for j, c := range w.Jumps {
			if c > 0 {
				continue
			}
			mu, alpha := m.split(j, coeffs)
			loss += (mu-1)*w.EndTime + floats.Dot(alpha, w.Nodes[j].SumIntegrated)
		}
	}
	return loss
}

// addEmptyNodesGrad adds the gradient of emptyNodesLoss into out.
func (m *LogLikelihood) addEmptyNodesGrad(out []float64) {
	layout := m.Layout()
	for _, w := range m.weights {
		for j, c := range w.Jumps {
			if c > 0 {
				continue
			}
			from, to := layout.AlphaRow(j)
			out[layout.Baseline(j, 0)] += w.EndTime
			floats.Add(out[from:to], w.Nodes[j].SumIntegrated)
		}
	}
}

func (m *LogLikelihood) Grad(coeffs, out []float64) {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "grad")

	parallel.Run(m.Threads, m.nodes, func(i int) {
		m.nodeGrad(i, coeffs, out)
	})
	floats.Scale(1/float64(m.NumTotalJumps()), out)
}

// NodeGrad writes the gradient of NodeLoss(i) into the entries of node i.
func (m *LogLikelihood) NodeGrad(i int, coeffs, out []float64) {
	m.requireWeights()
	checkNode(i, m.nodes)
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	m.nodeGrad(i, coeffs, out)
}

func (m *LogLikelihood) LossAndGrad(coeffs, out []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "loss_and_grad")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		return m.nodeGrad(i, coeffs, out)
	})

	total := float64(m.NumTotalJumps())
	floats.Scale(1/total, out)
	return sum / total
}

// nodeGrad writes the gradient of node i and returns its loss.
func (m *LogLikelihood) nodeGrad(i int, coeffs, out []float64) (loss float64) {
	layout := m.Layout()
	mu, alpha := m.split(i, coeffs)
	width := len(alpha)

	from, to := layout.AlphaRow(i)
	gradAlpha := out[from:to]
	gradMu := 0.0
	floats.Scale(0, gradAlpha)

	for _, w := range m.weights {
		nw := w.Nodes[i]
		gradMu += w.EndTime
		floats.Add(gradAlpha, nw.SumIntegrated)
		loss += (mu-1)*w.EndTime + floats.Dot(alpha, nw.SumIntegrated)

		for k := 0; k < w.Jumps[i]; k++ {
			excitation := nw.Excitation[k*width : (k+1)*width]
			s := m.intensity(i, k, mu, alpha, excitation)
			gradMu -= 1 / s
			floats.AddScaled(gradAlpha, -1/s, excitation)
			loss -= math.Log(s)
		}
	}

	out[layout.Baseline(i, 0)] = gradMu
	return loss
}

// GradI writes the gradient of LossI(s) into out. Every entry outside the
// node of the sample is set to zero, except for sample 0 which also holds
// the gradient of the nodes without jumps.
func (m *LogLikelihood) GradI(s int, coeffs, out []float64) {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "grad_i")

	r, i, k := m.sample(s)
	layout := m.Layout()
	mu, alpha := m.split(i, coeffs)
	width := len(alpha)

	w := m.weights[r]
	nw := w.Nodes[i]

	floats.Scale(0, out)
	from, to := layout.AlphaRow(i)
	gradAlpha := out[from:to]

	excitation := nw.Excitation[k*width : (k+1)*width]
	intensity := m.intensity(i, k, mu, alpha, excitation)

	gradMu := nw.Gaps[k] - 1/intensity
	floats.Add(gradAlpha, nw.Integrated[k*width:(k+1)*width])
	floats.AddScaled(gradAlpha, -1/intensity, excitation)

	if last := w.Jumps[i]; k == last-1 {
		gradMu += nw.Gaps[last]
		floats.Add(gradAlpha, nw.Integrated[last*width:(last+1)*width])
	}

	out[layout.Baseline(i, 0)] = gradMu

	if s == 0 {
		m.addEmptyNodesGrad(out)
	}
}

// Hessian writes the Hessian of Loss at coeffs with the row layout of
// LeastSquares.Hessian: row c holds the block of the node of coefficient c.
func (m *LogLikelihood) Hessian(coeffs, out []float64) {
	m.requireWeights()
	layout := m.Layout()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(out, layout.HessianSize())
	metrics.IncEvaluation(logLikelihoodModel, "hessian")

	width := layout.BlockWidth()
	scale := 1 / float64(m.NumTotalJumps())

	parallel.Run(m.Threads, m.nodes, func(i int) {
		block := m.hessianBlock(i, coeffs)
		for r := 0; r < width; r++ {
			row := layout.BlockCoeff(i, r) * width
			for c := 0; c < width; c++ {
				out[row+c] = block[r*width+c] * scale
			}
		}
	})
}

// hessianBlock returns sum_k v v^T / lambda_k^2 with v = (1, g_k) over the
// jumps of node i.
func (m *LogLikelihood) hessianBlock(i int, coeffs []float64) []float64 {
	mu, alpha := m.split(i, coeffs)
	n := len(alpha)
	width := 1 + n
	block := make([]float64, width*width)
	v := make([]float64, width)
	v[0] = 1

	for _, w := range m.weights {
		nw := w.Nodes[i]
		for k := 0; k < w.Jumps[i]; k++ {
			excitation := nw.Excitation[k*n : (k+1)*n]
			s := m.intensity(i, k, mu, alpha, excitation)
			copy(v[1:], excitation)

			inv := 1 / (s * s)
			for r := 0; r < width; r++ {
				floats.AddScaled(block[r*width:(r+1)*width], v[r]*inv, v)
			}
		}
	}

	return block
}

// HessianNorm returns vector^T H vector where H is the Hessian of Loss at
// coeffs, without materializing H.
func (m *LogLikelihood) HessianNorm(coeffs, vector []float64) float64 {
	m.requireWeights()
	checkCoeffs(coeffs, m.NumCoeffs())
	checkCoeffs(vector, m.NumCoeffs())
	metrics.IncEvaluation(logLikelihoodModel, "hessian_norm")

	sum := parallel.MapSum(m.Threads, m.nodes, func(i int) float64 {
		mu, alpha := m.split(i, coeffs)
		dmu, dalpha := m.split(i, vector)
		n := len(alpha)

		var norm float64
		for _, w := range m.weights {
			nw := w.Nodes[i]
			for k := 0; k < w.Jumps[i]; k++ {
				excitation := nw.Excitation[k*n : (k+1)*n]
				s := m.intensity(i, k, mu, alpha, excitation)
				d := dmu + floats.Dot(dalpha, excitation)
				norm += d * d / (s * s)
			}
		}
		return norm
	})

	return sum / float64(m.NumTotalJumps())
}
