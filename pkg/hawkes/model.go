package hawkes

import (
	"encoding"

	"github.com/pkg/errors"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

// Model is the common surface of the three objectives.
type Model interface {
	Objective
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	Layout() Layout
	Decays() kernel.Decays
	NumNodes() int
	NumRealizations() int
	NumTotalJumps() int

	SetData(r *events.Realization) error
	SetDataList(rs []*events.Realization) error
	IncrementalSetData(r *events.Realization) error
	ComputeWeights() error
	WeightsComputed() bool
	LossAndGrad(coeffs, out []float64) float64
}

var (
	_ Model = (*LeastSquares)(nil)
	_ Model = (*LogLikelihood)(nil)
	_ Model = (*ModulatedLogLikelihood)(nil)
)

var ErrUnknownKind = errors.New("unknown model kind")

// ModelConfig selects and parameterizes a model.
type ModelConfig struct {
	Kind   string        `json:"kind" yaml:"kind"`
	Decays kernel.Decays `json:"decays" yaml:"decays"`

	// NumBaselines and Period enable the periodic least-squares baselines.
	NumBaselines int     `json:"numBaselines,omitempty" yaml:"numBaselines,omitempty"`
	Period       float64 `json:"period,omitempty" yaml:"period,omitempty"`

	Options Options `json:"options" yaml:"options"`
}

func NewModel(c ModelConfig) (Model, error) {
	switch c.Kind {
	case KindLeastSquares:
		if c.NumBaselines > 0 {
			return NewPeriodicLeastSquares(c.Decays, c.NumBaselines, c.Period, c.Options)
		}
		return NewLeastSquares(c.Decays, c.Options)

	case KindLogLikelihood:
		return NewLogLikelihood(c.Decays, c.Options)

	case KindModulated:
		return NewModulatedLogLikelihood(c.Decays, c.Options)
	}

	return nil, errors.Wrapf(ErrUnknownKind, "%q", c.Kind)
}

// Restore decodes a snapshot of any model kind.
func Restore(data []byte) (Model, error) {
	kind, err := SnapshotKind(data)
	if err != nil {
		return nil, err
	}

	var m Model
	switch kind {
	case KindLeastSquares:
		m = &LeastSquares{}
	case KindLogLikelihood:
		m = &LogLikelihood{}
	case KindModulated:
		m = &ModulatedLogLikelihood{}
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}

	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}
