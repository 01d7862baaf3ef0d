package hawkes

import (
	"math"
)

// PenalizationParams are the hyperparameters of the data-driven
// penalization weights of the least-squares contrast.
type PenalizationParams struct {
	// X is the confidence level, usually log(end time).
	X float64 `json:"x" yaml:"x"`

	Baseline1 float64 `json:"baseline1" yaml:"baseline1"`
	Baseline2 float64 `json:"baseline2" yaml:"baseline2"`
	Kernel1   float64 `json:"kernel1" yaml:"kernel1"`
	Kernel2   float64 `json:"kernel2" yaml:"kernel2"`

	Normalization float64 `json:"normalization" yaml:"normalization"`
}

// SetDefaultValues applies default settings to unspecified fields
func (p *PenalizationParams) SetDefaultValues() {
	if p.Normalization == 0 {
		p.Normalization = 1
	}
}

// ComputePenalizationConstant returns the penalization weights of the
// baselines (one per baseline coefficient) and of the adjacency (one per
// alpha[i][j][u], row-major). It reads the cache only.
//
// With l = x + log(n), l2 = x + log(n^2), T the end time and N_iq the jumps
// of node i in state q:
//
//	baseline[i, q] = c1 sqrt(l N_iq) / T + c2 l / T
//	kernel[i, j, u] = c3 sqrt(l2 V_iju / norm) / T + c4 l2 B_ju / (norm T)
//
// where psi_ju(t) = sum_{t_j <= t} beta_u e^{-beta_u (t - t_j)},
// V_iju = sum over the jumps t of node i of psi_ju(t)^2 and B_ju is the
// largest psi_ju over the jumps of node j. Batches average N, V and T over
// the realizations and keep the largest B.
func (m *LeastSquares) ComputePenalizationConstant(p PenalizationParams) (baseline, kernel []float64) {
	m.requireWeights()
	p.SetDefaultValues()

	n, U, M := m.nodes, m.decays.Len(), m.MaxState
	R := float64(len(m.weights))

	var endTime float64
	counts := make([]float64, n*M)
	squares := make([]float64, n*n*U)
	peaks := make([]float64, n*U)

	for _, w := range m.weights {
		endTime += w.EndTime() / R

		for i := 0; i < n; i++ {
			for q := 0; q < M; q++ {
				counts[i*M+q] += w.Count(i, q) / R
			}
		}

		for j := 0; j < n; j++ {
			for u := 0; u < U; u++ {
				for i := 0; i < n; i++ {
					s, peak := w.jumpExcitation(i, j, u)
					squares[i*n*U+j*U+u] += s / R
					if i == j {
						peaks[j*U+u] = math.Max(peaks[j*U+u], peak)
					}
				}
			}
		}
	}

	l := p.X + math.Log(float64(n))
	l2 := p.X + math.Log(float64(n*n))

	baseline = make([]float64, n*M)
	for idx, c := range counts {
		baseline[idx] = p.Baseline1*math.Sqrt(l*c)/endTime + p.Baseline2*l/endTime
	}

	kernel = make([]float64, n*n*U)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for u := 0; u < U; u++ {
				idx := i*n*U + j*U + u
				kernel[idx] = p.Kernel1*math.Sqrt(l2*squares[idx]/p.Normalization)/endTime +
					p.Kernel2*l2*peaks[j*U+u]/(p.Normalization*endTime)
			}
		}
	}

	return baseline, kernel
}

// jumpExcitation returns the sum of squares and the maximum of psi_ju, the
// excitation from j including a simultaneous jump, over the jumps of node i.
func (w *Weights) jumpExcitation(i, j, u int) (squares, peak float64) {
	beta := w.shape.Decay(u)
	for _, k := range w.jumpIndex[i] {
		psi := w.Excitation(j, k, u)
		if i == j {
			psi += beta
		}

		squares += psi * psi
		peak = math.Max(peak, psi)
	}
	return squares, peak
}
