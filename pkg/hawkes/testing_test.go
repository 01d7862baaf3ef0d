package hawkes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/c9s/qrhawkes/pkg/events"
)

func seedTimestamps() [][]float64 {
	return [][]float64{
		{0.31, 0.93, 1.29, 2.32, 4.25},
		{0.12, 1.19, 2.12, 2.41, 3.35, 4.21},
	}
}

func newRealization(t *testing.T, timestamps [][]float64, endTime float64) *events.Realization {
	t.Helper()
	r, err := events.New(timestamps, endTime)
	require.NoError(t, err)
	return r
}

func assertPrecondition(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		if assert.True(t, ok, "expected a panic carrying an error, got %v", r) {
			assert.ErrorIs(t, err, sentinel)

			var pe *PreconditionError
			assert.ErrorAs(t, err, &pe)
		}
	}()
	fn()
}

func numericalGrad(f func([]float64) float64, x []float64) []float64 {
	return fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})
}

func assertSliceInDelta(t *testing.T, expected, actual []float64, delta float64) {
	t.Helper()
	if assert.Len(t, actual, len(expected)) {
		for i := range expected {
			assert.InDelta(t, expected[i], actual[i], delta, "index %d", i)
		}
	}
}
