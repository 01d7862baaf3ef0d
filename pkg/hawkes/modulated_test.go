package hawkes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

func TestModulatedLogLikelihood_UnitFactorsMatchLogLikelihood(t *testing.T) {
	decays := kernel.Decays{1, 2, 3}
	base := []float64{1, 3, 2, 3, 4, 1, 5, 3, 2, 4, 2, 3, 4, 5}

	plain := newLogLikelihood(t, decays, seedTimestamps(), 5.65)

	m, err := NewModulatedLogLikelihood(decays, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.65)))
	require.NoError(t, m.ComputeWeights())

	coeffs := append(append([]float64{}, base...), 1, 1)
	require.Equal(t, len(coeffs), m.NumCoeffs())
	assert.InEpsilon(t, 17.202925821121468, m.Loss(coeffs), 1e-10)
	assert.InEpsilon(t, plain.NodeLoss(1, base), m.LossI(1, coeffs), 1e-10)

	expected := make([]float64, plain.NumCoeffs())
	plain.Grad(base, expected)

	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, expected, grad[:len(base)], 1e-10)
}

func TestModulatedLogLikelihood_SimultaneousJumps(t *testing.T) {
	decays := kernel.Decays{1, 2.5}
	timestamps := [][]float64{{0.5, 1, 2}, {1, 1.5, 2}}
	base := []float64{0.5, 0.8, 0.2, 0.1, 0.3, 0.2, 0.1, 0.4, 0.3, 0.2}

	plain := newLogLikelihood(t, decays, timestamps, 3)

	m, err := NewModulatedLogLikelihood(decays, Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetData(newRealization(t, timestamps, 3)))
	require.NoError(t, m.ComputeWeights())

	// node 1 jumps at 1 together with node 0, which does not excite it yet
	w := m.weights[0]
	k := w.JumpIndices(1)[0]
	assert.InDelta(t, math.Exp(-0.5), w.Excitation(0, k, 0), 1e-12)
	assert.InDelta(t, 2.5*math.Exp(-2.5*0.5), w.Excitation(0, k, 1), 1e-12)
	assert.Zero(t, w.Excitation(1, k, 0))

	coeffs := append(append([]float64{}, base...), 1, 1)
	assert.InEpsilon(t, plain.Loss(base), m.Loss(coeffs), 1e-10)

	expected := make([]float64, plain.NumCoeffs())
	plain.Grad(base, expected)

	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, expected, grad[:len(base)], 1e-10)
}

func TestModulatedLogLikelihood_Gradient(t *testing.T) {
	r := newRealization(t, seedTimestamps(), 5.65)
	r, err := r.WithStates([]int{0, 1, 1, 0, 1, 1, 0, 0, 1, 0, 1, 1})
	require.NoError(t, err)

	m, err := NewModulatedLogLikelihood(kernel.Decays{1.5}, Options{MaxState: 2})
	require.NoError(t, err)
	require.NoError(t, m.SetData(r))
	require.NoError(t, m.ComputeWeights())

	layout := m.Layout()
	assert.Equal(t, 10, m.NumCoeffs())
	assert.Equal(t, 6, layout.Modulator(0, 0))

	coeffs := []float64{0.6, 0.9, 0.3, 0.2, 0.1, 0.4, 1.2, 0.7, 0.8, 1.5}
	grad := make([]float64, m.NumCoeffs())
	m.Grad(coeffs, grad)
	assertSliceInDelta(t, numericalGrad(m.Loss, coeffs), grad, 1e-6)

	both := make([]float64, m.NumCoeffs())
	assert.InEpsilon(t, m.Loss(coeffs), m.LossAndGrad(coeffs, both), 1e-12)
	assertSliceInDelta(t, grad, both, 1e-12)

	sum := m.LossI(0, coeffs) + m.LossI(1, coeffs)
	assert.InEpsilon(t, m.Loss(coeffs)*11, sum, 1e-12)

	// a factor of zero in a visited state makes the likelihood vanish
	zero := append([]float64{}, coeffs...)
	zero[layout.Modulator(1, 1)] = 0
	assertPrecondition(t, ErrNonPositiveIntensity, func() { m.Loss(zero) })
}

func TestModulatedLogLikelihood_Snapshot(t *testing.T) {
	r := newRealization(t, seedTimestamps(), 5.65)
	r, err := r.WithStates([]int{0, 1, 1, 0, 1, 1, 0, 0, 1, 0, 1, 1})
	require.NoError(t, err)

	m, err := NewModulatedLogLikelihood(kernel.Decays{1.5}, Options{MaxState: 2})
	require.NoError(t, err)
	require.NoError(t, m.SetDataList([]*events.Realization{r}))
	require.NoError(t, m.ComputeWeights())

	data, err := m.MarshalBinary()
	require.NoError(t, err)

	kind, err := SnapshotKind(data)
	require.NoError(t, err)
	assert.Equal(t, KindModulated, kind)

	restored := &ModulatedLogLikelihood{}
	require.NoError(t, restored.UnmarshalBinary(data))

	coeffs := []float64{0.6, 0.9, 0.3, 0.2, 0.1, 0.4, 1.2, 0.7, 0.8, 1.5}
	assert.Equal(t, m.Loss(coeffs), restored.Loss(coeffs))
}
