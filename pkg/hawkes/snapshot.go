package hawkes

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

const SnapshotVersion = 1

// Snapshot kinds
const (
	KindLeastSquares  = "least_squares"
	KindLogLikelihood = "log_likelihood"
	KindModulated     = "modulated_log_likelihood"
)

type snapshotHeader struct {
	Version int       `msgpack:"version"`
	Kind    string    `msgpack:"kind"`
	Options Options   `msgpack:"options"`
	Decays  []float64 `msgpack:"decays"`
	Nodes   int       `msgpack:"nodes"`
}

type weightsSnapshot struct {
	Timeline *events.Timeline `msgpack:"timeline"`
	Computed bool             `msgpack:"computed"`

	Excitation [][]float64 `msgpack:"g,omitempty"`
	Integrated [][]float64 `msgpack:"G,omitempty"`
	Cross      [][]float64 `msgpack:"H,omitempty"`
	CrossTotal [][]float64 `msgpack:"Htotal,omitempty"`
	Owned      [][]float64 `msgpack:"D,omitempty"`
	Count      [][]float64 `msgpack:"count,omitempty"`
	Length     []float64   `msgpack:"length,omitempty"`
}

type leastSquaresSnapshot struct {
	snapshotHeader `msgpack:",inline"`

	NumBaselines int               `msgpack:"numBaselines"`
	Period       float64           `msgpack:"period"`
	Weights      []weightsSnapshot `msgpack:"weights"`
}

type modulatedSnapshot struct {
	snapshotHeader `msgpack:",inline"`

	Weights []weightsSnapshot `msgpack:"weights"`
}

type logLikelihoodSnapshot struct {
	snapshotHeader `msgpack:",inline"`

	Weights []*likelihoodWeights `msgpack:"weights"`
}

func (w *Weights) snapshot() weightsSnapshot {
	s := weightsSnapshot{Timeline: w.timeline, Computed: w.computed}
	if w.computed {
		s.Excitation = w.g
		s.Integrated = w.bigG
		s.Cross = w.h
		s.CrossTotal = w.hTotal
		s.Owned = w.d
		s.Count = w.count
		s.Length = w.length
	}
	return s
}

func restoreWeights(s weightsSnapshot, shape kernel.Shape, withCross bool, model string) (*Weights, error) {
	if s.Timeline == nil {
		return nil, errors.New("snapshot has no timeline")
	}

	w := NewWeights(s.Timeline, shape, withCross)
	w.model = model
	if !s.Computed {
		return w, nil
	}

	n := w.nodes
	if len(s.Excitation) != n || len(s.Integrated) != n || len(s.Owned) != n || len(s.Count) != n {
		return nil, errors.New("snapshot weights do not match the number of nodes")
	}

	if withCross && (len(s.Cross) != n || len(s.CrossTotal) != n) {
		return nil, errors.New("snapshot has no cross terms")
	}

	w.g = s.Excitation
	w.bigG = s.Integrated
	w.h = s.Cross
	w.hTotal = s.CrossTotal
	w.d = s.Owned
	w.count = s.Count
	w.length = s.Length
	w.jumpIndex = s.Timeline.JumpIndices()
	w.computed = true
	return w, nil
}

func checkHeader(h snapshotHeader, kind string) error {
	if h.Version != SnapshotVersion {
		return errors.Wrapf(ErrSnapshotVersion, "got version %d, supported %d", h.Version, SnapshotVersion)
	}

	if h.Kind != kind {
		return errors.Wrapf(ErrSnapshotKind, "got %q, expected %q", h.Kind, kind)
	}

	return nil
}

// SnapshotKind reads the model kind of an encoded snapshot.
func SnapshotKind(data []byte) (string, error) {
	var h snapshotHeader
	if err := msgpack.Unmarshal(data, &h); err != nil {
		return "", errors.Wrap(err, "decode snapshot header")
	}

	if h.Version != SnapshotVersion {
		return "", errors.Wrapf(ErrSnapshotVersion, "got version %d", h.Version)
	}

	return h.Kind, nil
}

func (m *LeastSquares) MarshalBinary() ([]byte, error) {
	s := leastSquaresSnapshot{
		snapshotHeader: snapshotHeader{
			Version: SnapshotVersion,
			Kind:    KindLeastSquares,
			Options: *m.Options,
			Decays:  m.decays,
			Nodes:   m.nodes,
		},
		NumBaselines: m.numBaselines,
		Period:       m.period,
	}

	for _, w := range m.weights {
		s.Weights = append(s.Weights, w.snapshot())
	}

	return msgpack.Marshal(&s)
}

func (m *LeastSquares) UnmarshalBinary(data []byte) error {
	var s leastSquaresSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode least squares snapshot")
	}

	if err := checkHeader(s.snapshotHeader, KindLeastSquares); err != nil {
		return err
	}

	var (
		restored *LeastSquares
		err      error
	)

	if s.NumBaselines > 0 {
		restored, err = NewPeriodicLeastSquares(s.Decays, s.NumBaselines, s.Period, s.Options)
	} else {
		restored, err = NewLeastSquares(s.Decays, s.Options)
	}

	if err != nil {
		return err
	}

	for idx, ws := range s.Weights {
		w, err := restoreWeights(ws, restored.shape, true, leastSquaresModel)
		if err != nil {
			return errors.Wrapf(err, "realization %d", idx)
		}
		restored.weights = append(restored.weights, w)
	}

	restored.nodes = s.Nodes
	*m = *restored
	return nil
}

func (m *ModulatedLogLikelihood) MarshalBinary() ([]byte, error) {
	s := modulatedSnapshot{
		snapshotHeader: snapshotHeader{
			Version: SnapshotVersion,
			Kind:    KindModulated,
			Options: *m.Options,
			Decays:  m.decays,
			Nodes:   m.nodes,
		},
	}

	for _, w := range m.weights {
		s.Weights = append(s.Weights, w.snapshot())
	}

	return msgpack.Marshal(&s)
}

func (m *ModulatedLogLikelihood) UnmarshalBinary(data []byte) error {
	var s modulatedSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode modulated snapshot")
	}

	if err := checkHeader(s.snapshotHeader, KindModulated); err != nil {
		return err
	}

	restored, err := NewModulatedLogLikelihood(s.Decays, s.Options)
	if err != nil {
		return err
	}

	for idx, ws := range s.Weights {
		w, err := restoreWeights(ws, restored.shape, false, modulatedModel)
		if err != nil {
			return errors.Wrapf(err, "realization %d", idx)
		}
		restored.weights = append(restored.weights, w)
	}

	restored.nodes = s.Nodes
	*m = *restored
	return nil
}

func (m *LogLikelihood) MarshalBinary() ([]byte, error) {
	s := logLikelihoodSnapshot{
		snapshotHeader: snapshotHeader{
			Version: SnapshotVersion,
			Kind:    KindLogLikelihood,
			Options: *m.Options,
			Decays:  m.decays,
			Nodes:   m.nodes,
		},
		Weights: m.weights,
	}

	return msgpack.Marshal(&s)
}

func (m *LogLikelihood) UnmarshalBinary(data []byte) error {
	var s logLikelihoodSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode log-likelihood snapshot")
	}

	if err := checkHeader(s.snapshotHeader, KindLogLikelihood); err != nil {
		return err
	}

	restored, err := NewLogLikelihood(s.Decays, s.Options)
	if err != nil {
		return err
	}

	for idx, w := range s.Weights {
		if w == nil || (!w.Computed && w.Realization == nil) {
			return errors.Errorf("realization %d has neither weights nor data", idx)
		}

		if w.Computed && len(w.Nodes) != s.Nodes {
			return errors.Errorf("realization %d has %d node caches, expected %d", idx, len(w.Nodes), s.Nodes)
		}
	}

	restored.weights = s.Weights
	restored.nodes = s.Nodes
	restored.indexSamples()
	*m = *restored
	return nil
}
