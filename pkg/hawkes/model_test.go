package hawkes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c9s/qrhawkes/pkg/kernel"
)

func TestNewModel(t *testing.T) {
	tests := []struct {
		name   string
		config ModelConfig
		coeffs int
		err    error
	}{
		{name: "least squares", config: ModelConfig{Kind: KindLeastSquares, Decays: kernel.Decays{2, 2}}, coeffs: 10},
		{name: "periodic", config: ModelConfig{Kind: KindLeastSquares, Decays: kernel.Decays{2}, NumBaselines: 3, Period: 2}, coeffs: 10},
		{name: "log-likelihood", config: ModelConfig{Kind: KindLogLikelihood, Decays: kernel.Decays{2}}, coeffs: 6},
		{name: "modulated", config: ModelConfig{Kind: KindModulated, Decays: kernel.Decays{2}, Options: Options{MaxState: 3}}, coeffs: 12},
		{name: "unknown", config: ModelConfig{Kind: "kernel_regression", Decays: kernel.Decays{2}}, err: ErrUnknownKind},
		{name: "bad decays", config: ModelConfig{Kind: KindLogLikelihood, Decays: kernel.Decays{-1}}, err: kernel.ErrInvalidDecay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(tt.config)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			require.NoError(t, m.SetData(newRealization(t, seedTimestamps(), 5.65)))
			require.NoError(t, m.ComputeWeights())
			assert.Equal(t, tt.coeffs, m.NumCoeffs())

			data, err := m.MarshalBinary()
			require.NoError(t, err)

			restored, err := Restore(data)
			require.NoError(t, err)
			assert.IsType(t, m, restored)

			coeffs := make([]float64, m.NumCoeffs())
			for c := range coeffs {
				coeffs[c] = 0.5 + 0.1*float64(c%4)
			}
			assert.Equal(t, m.Loss(coeffs), restored.Loss(coeffs))
		})
	}
}

func TestRestore_Invalid(t *testing.T) {
	_, err := Restore([]byte("not a snapshot"))
	assert.Error(t, err)
}
