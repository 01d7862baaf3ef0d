package hawkes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

func newLeastSquares(t *testing.T, decays kernel.Decays, endTime float64) *LeastSquares {
	t.Helper()
	m, err := NewLeastSquares(decays, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), endTime)))
	require.NoError(t, m.ComputeWeights())
	return m
}

func TestLeastSquares_Loss(t *testing.T) {
	tests := []struct {
		name    string
		decays  kernel.Decays
		endTime float64
		coeffs  []float64
		lossI   []float64
		loss    float64
	}{
		{
			name:    "sum of exponentials",
			decays:  kernel.Decays{2, 2},
			endTime: 5.65,
			coeffs:  []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4},
			lossI:   []float64{709.43688360602232, 1717.7627409202796},
			loss:    220.65451132057288,
		},
		{
			name:    "single exponential",
			decays:  kernel.Decays{2},
			endTime: 5.65,
			coeffs:  []float64{1, 3, 2, 3, 4, 1},
			lossI:   []float64{177.74263433770577, 300.36718283368231},
			loss:    43.46452883376255,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newLeastSquares(t, tt.decays, tt.endTime)
			assert.Equal(t, len(tt.coeffs), m.NumCoeffs())
			assert.Equal(t, 11, m.NumTotalJumps())

			for i, expected := range tt.lossI {
				assert.InEpsilon(t, expected, m.LossI(i, tt.coeffs), 1e-10)
			}
			assert.InEpsilon(t, tt.loss, m.Loss(tt.coeffs), 1e-10)
		})
	}
}

func TestLeastSquares_PeriodicBaseline(t *testing.T) {
	m, err := NewPeriodicLeastSquares(kernel.Decays{2, 2}, 3, 2, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.87)))
	require.NoError(t, m.ComputeWeights())

	coeffs := []float64{1, 3, 0, 1, 1, 3, 2, 3, 4, 1, 5, 3, 2, 4}
	assert.Equal(t, 14, m.NumCoeffs())
	assert.InEpsilon(t, 754.50509295231836, m.LossI(0, coeffs), 1e-10)
	assert.InEpsilon(t, 1488.8712825118096, m.LossI(1, coeffs), 1e-10)
	assert.InEpsilon(t, 203.94330686037526, m.Loss(coeffs), 1e-10)
}

func TestLeastSquares_List(t *testing.T) {
	tests := []struct {
		name     string
		periodic bool
		decays   kernel.Decays
		coeffs   []float64
		lossI    []float64
		loss     float64
	}{
		{
			name:   "sum of exponentials",
			decays: kernel.Decays{2, 2},
			coeffs: []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4},
			lossI:  []float64{1419.8117850574868, 3439.937591029975},
			loss:   220.89769891306648,
		},
		{
			name:     "periodic baseline",
			periodic: true,
			decays:   kernel.Decays{2, 2},
			coeffs:   []float64{1, 3, 0, 1, 1, 3, 2, 3, 4, 1, 5, 3, 2, 4},
			lossI:    []float64{1508.7587849870356, 2973.3304558342033},
			loss:     203.73132912823812,
		},
		{
			name:   "single exponential",
			decays: kernel.Decays{2},
			coeffs: []float64{1, 3, 2, 3, 4, 1},
			lossI:  []float64{356.00492335074784, 603.45311621338624},
			loss:   43.611729071097002,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				m   *LeastSquares
				err error
			)
			if tt.periodic {
				m, err = NewPeriodicLeastSquares(tt.decays, 3, 2, Options{Threads: 2})
			} else {
				m, err = NewLeastSquares(tt.decays, Options{Threads: 2})
			}
			require.NoError(t, err)

			rs := []*events.Realization{
				newRealization(t, seedTimestamps(), 5.65),
				newRealization(t, seedTimestamps(), 5.87),
			}
			require.NoError(t, m.SetDataList(rs))
			require.NoError(t, m.ComputeWeights())

			assert.Equal(t, 2, m.NumRealizations())
			assert.Equal(t, []float64{5.65, 5.87}, m.EndTimes())
			for i, expected := range tt.lossI {
				assert.InEpsilon(t, expected, m.LossI(i, tt.coeffs), 1e-10)
			}
			assert.InEpsilon(t, tt.loss, m.Loss(tt.coeffs), 1e-10)

			// the same batch fed incrementally
			incremental, err := NewLeastSquares(tt.decays, Options{})
			if tt.periodic {
				incremental, err = NewPeriodicLeastSquares(tt.decays, 3, 2, Options{})
			}
			require.NoError(t, err)
			for _, r := range rs {
				require.NoError(t, incremental.IncrementalSetData(r))
			}
			assert.InEpsilon(t, m.Loss(tt.coeffs), incremental.Loss(tt.coeffs), 1e-12)
		})
	}
}

func TestLeastSquares_StateDependentBaseline(t *testing.T) {
	r := newRealization(t, seedTimestamps(), 5.65)
	r, err := r.WithStates([]int{0, 1, 1, 0, 2, 2, 1, 0, 0, 1, 2, 1})
	require.NoError(t, err)

	m, err := NewLeastSquares(kernel.Decays{1, 3}, Options{MaxState: 3})
	require.NoError(t, err)
	require.NoError(t, m.SetData(r))
	require.NoError(t, m.ComputeWeights())

	coeffs := []float64{0.5, 1, 0.2, 0.7, 0.3, 1.1, 0.4, 0.1, 0.3, 0.2, 0.2, 0.5, 0.1, 0.6}
	require.Equal(t, len(coeffs), m.NumCoeffs())

	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, numericalGrad(m.Loss, coeffs), grad, 1e-6)

	// states outside [0, MaxState)
	bad, err := NewLeastSquares(kernel.Decays{1}, Options{MaxState: 2})
	require.NoError(t, err)
	assert.ErrorIs(t, bad.SetData(r), events.ErrState)
}

func TestLeastSquares_Gradient(t *testing.T) {
	m := newLeastSquares(t, kernel.Decays{1, 2.5}, 5.65)
	coeffs := []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4}

	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, numericalGrad(m.Loss, coeffs), grad, 1e-5)

	both := make([]float64, m.NumCoeffs())
	loss := m.LossAndGrad(coeffs, both)
	assert.InEpsilon(t, m.Loss(coeffs), loss, 1e-12)
	assertSliceInDelta(t, grad, both, 1e-10)

	// GradI fills the entries of one node with the unnormalized gradient
	layout := m.Layout()
	partial := make([]float64, m.NumCoeffs())
	for c := range partial {
		partial[c] = 42
	}
	m.GradI(1, coeffs, partial)
	from, to := layout.AlphaRow(1)
	for c := range partial {
		switch {
		case c == layout.Baseline(1, 0) || (c >= from && c < to):
			assert.InDelta(t, grad[c]*11, partial[c], 1e-8)
		default:
			assert.Equal(t, 42.0, partial[c])
		}
	}
}

func TestLeastSquares_Hessian(t *testing.T) {
	m := newLeastSquares(t, kernel.Decays{1, 2}, 4.25)
	layout := m.Layout()

	out := make([]float64, layout.HessianSize())
	require.Len(t, out, 50)
	m.Hessian(out)

	assert.InEpsilon(t, 0.77272727272727271, out[0], 1e-10)
	assert.InEpsilon(t, 0.88541497694402216, out[4], 1e-10)
	assert.InEpsilon(t, 0.68135124324440344, out[6], 1e-10)
	assert.InEpsilon(t, 0.78036647401912185, out[8], 1e-10)
	assert.InEpsilon(t, 0.88541497694402216, out[9], 1e-10)

	// the contrast is quadratic: the gradient moves linearly with the Hessian
	x := []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4}
	v := []float64{0.1, -0.2, 0.3, 0, 0.5, -0.1, 0.2, 0.2, -0.3, 0.1}
	y := make([]float64, len(x))
	for c := range x {
		y[c] = x[c] + v[c]
	}

	gx := make([]float64, len(x))
	gy := make([]float64, len(x))
	m.Grad(x, gx)
	m.Grad(y, gy)

	width := layout.BlockWidth()
	for c := range x {
		i := c % layout.Nodes
		if c >= layout.Nodes {
			i = (c - layout.Nodes) / (layout.Nodes * layout.Decays)
		}

		var hv float64
		for col := 0; col < width; col++ {
			hv += out[c*width+col] * v[layout.BlockCoeff(i, col)]
		}
		assert.InDelta(t, gy[c]-gx[c], hv, 1e-9, "coefficient %d", c)
	}

	block := m.HessianBlock()
	r, _ := block.Dims()
	assert.Equal(t, width, r)
	assert.InEpsilon(t, out[0], block.At(0, 0), 1e-12)
}

func TestLeastSquares_SingleDecayEquivalence(t *testing.T) {
	single := newLeastSquares(t, kernel.Decays{2}, 5.65)
	double := newLeastSquares(t, kernel.Decays{2, 2}, 5.65)

	// identical decays split every alpha in two
	singleCoeffs := []float64{1, 3, 2, 3, 4, 1}
	doubleCoeffs := []float64{1, 3, 1, 1, 1.5, 1.5, 2, 2, 0.5, 0.5}
	assert.InEpsilon(t, single.Loss(singleCoeffs), double.Loss(doubleCoeffs), 1e-12)

	p := PenalizationParams{X: math.Log(5.65), Baseline1: 1, Baseline2: 2, Kernel1: 3, Kernel2: 4, Normalization: 5}
	sb, sk := single.ComputePenalizationConstant(p)
	db, dk := double.ComputePenalizationConstant(p)
	assertSliceInDelta(t, sb, db, 1e-12)
	for c := range sk {
		assert.InEpsilon(t, sk[c], dk[2*c], 1e-12)
		assert.InEpsilon(t, sk[c], dk[2*c+1], 1e-12)
	}
}

func TestLeastSquares_PenalizationConstant(t *testing.T) {
	p := PenalizationParams{X: math.Log(5.65), Baseline1: 1, Baseline2: 2, Kernel1: 3, Kernel2: 4, Normalization: 5}
	expectedBaseline := []float64{1.4746126, 1.533433}
	expectedKernel := []float64{
		3.7823451, 6.2572098, 8.7556677, 2.9730082, 4.4998579, 5.7802391,
		2.538518, 3.5776682, 4.5279408, 4.0402794, 6.7555614, 9.4871035,
	}

	m := newLeastSquares(t, kernel.Decays{2, 4, 6}, 5.65)
	baseline, kernelPen := m.ComputePenalizationConstant(p)
	assertSliceInDelta(t, expectedBaseline, baseline, 1e-6)
	assertSliceInDelta(t, expectedKernel, kernelPen, 1e-6)

	// a batch of identical realizations gives the same constants
	batch, err := NewLeastSquares(kernel.Decays{2, 4, 6}, Options{})
	require.NoError(t, err)
	require.NoError(t, batch.SetDataList([]*events.Realization{
		newRealization(t, seedTimestamps(), 5.65),
		newRealization(t, seedTimestamps(), 5.65),
	}))
	require.NoError(t, batch.ComputeWeights())
	batchBaseline, batchKernel := batch.ComputePenalizationConstant(p)
	assertSliceInDelta(t, baseline, batchBaseline, 1e-12)
	assertSliceInDelta(t, kernelPen, batchKernel, 1e-12)
}

func TestLeastSquares_SparseNode(t *testing.T) {
	timestamps := seedTimestamps()
	timestamps[1] = []float64{}

	m, err := NewLeastSquares(kernel.Decays{2}, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, timestamps, 4.25)))
	require.NoError(t, m.ComputeWeights())

	coeffs := []float64{1, 3, 2, 3, 4, 1}
	loss := m.Loss(coeffs)
	assert.False(t, math.IsNaN(loss) || math.IsInf(loss, 0))

	// the empty node still has a compensator but no jump term
	assert.Greater(t, m.LossI(1, coeffs), 0.0)

	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, numericalGrad(m.Loss, coeffs), grad, 1e-5)
}

func TestLeastSquares_ThreadsDoNotChangeResults(t *testing.T) {
	coeffs := []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4}
	var losses []float64
	for _, threads := range []int{1, 2, 7} {
		m, err := NewLeastSquares(kernel.Decays{1, 3}, Options{Threads: threads})
		require.NoError(t, err)
		require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.65)))
		require.NoError(t, m.ComputeWeights())
		losses = append(losses, m.Loss(coeffs))
	}

	assert.Equal(t, losses[0], losses[1])
	assert.Equal(t, losses[0], losses[2])
}

func TestLeastSquares_FastExp(t *testing.T) {
	coeffs := []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4}
	exact := newLeastSquares(t, kernel.Decays{2, 2}, 5.65)

	fast, err := NewLeastSquares(kernel.Decays{2, 2}, Options{OptimizationLevel: 1})
	require.NoError(t, err)
	require.NoError(t, fast.SetData(newRealization(t, seedTimestamps(), 5.65)))
	require.NoError(t, fast.ComputeWeights())

	assert.InEpsilon(t, exact.Loss(coeffs), fast.Loss(coeffs), 1e-8)
}

func TestLeastSquares_Preconditions(t *testing.T) {
	m, err := NewLeastSquares(kernel.Decays{2}, Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.ComputeWeights(), ErrNoData)
	assert.ErrorIs(t, m.SetDataList(nil), ErrNoData)

	require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.65)))
	coeffs := []float64{1, 3, 2, 3, 4, 1}
	assertPrecondition(t, ErrWeightsNotComputed, func() { m.Loss(coeffs) })
	assertPrecondition(t, ErrWeightsNotComputed, func() { m.Hessian(make([]float64, 18)) })

	require.NoError(t, m.ComputeWeights())
	assertPrecondition(t, ErrCoeffsLength, func() { m.Loss(coeffs[:4]) })
	assertPrecondition(t, ErrNodeIndex, func() { m.LossI(2, coeffs) })

	err = m.SetDataList([]*events.Realization{
		newRealization(t, seedTimestamps(), 5.65),
		newRealization(t, [][]float64{{0.1}}, 1),
	})
	assert.ErrorIs(t, err, ErrNodeMismatch)
	assert.ErrorIs(t, m.IncrementalSetData(newRealization(t, [][]float64{{0.1}}, 1)), ErrNodeMismatch)

	empty := newRealization(t, [][]float64{{}, {}}, 1)
	assert.ErrorIs(t, m.SetData(empty), ErrNoData)
}

func TestLeastSquares_Snapshot(t *testing.T) {
	coeffs := []float64{1, 3, 0, 1, 1, 3, 2, 3, 4, 1, 5, 3, 2, 4}

	m, err := NewPeriodicLeastSquares(kernel.Decays{2, 2}, 3, 2, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.87)))

	// before weights are computed the timeline travels with the snapshot
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	restored := &LeastSquares{}
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.False(t, restored.WeightsComputed())
	require.NoError(t, restored.ComputeWeights())
	assert.InEpsilon(t, 203.94330686037526, restored.Loss(coeffs), 1e-10)

	data, err = restored.MarshalBinary()
	require.NoError(t, err)

	kind, err := SnapshotKind(data)
	require.NoError(t, err)
	assert.Equal(t, KindLeastSquares, kind)

	again := &LeastSquares{}
	require.NoError(t, again.UnmarshalBinary(data))
	assert.True(t, again.WeightsComputed())
	assert.True(t, again.Periodic())
	assert.Equal(t, restored.Loss(coeffs), again.Loss(coeffs))

	var wrong LogLikelihood
	assert.ErrorIs(t, wrong.UnmarshalBinary(data), ErrSnapshotKind)
}
