package events

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrNoNodes  = errors.New("realization has no nodes")
	ErrUnsorted = errors.New("timestamps must be strictly increasing")
	ErrEndTime  = errors.New("end time must not precede the last timestamp")
	ErrState    = errors.New("invalid state path")
)

// Realization is one observed trajectory of a multivariate point process.
//
// Timestamps[i] are the jump times of node i on [0, EndTime]. States, when
// set, is the state path of the observation: States[0] is the state at time
// 0 and States[k] the state right after the k-th jump in merged time order,
// so len(States) == NumJumps()+1.
type Realization struct {
	Timestamps [][]float64 `json:"timestamps" yaml:"timestamps"`
	EndTime    float64     `json:"endTime" yaml:"endTime"`
	States     []int       `json:"states,omitempty" yaml:"states,omitempty"`
}

// New builds a realization and validates it. A non-positive end time is
// replaced by the largest timestamp.
func New(timestamps [][]float64, endTime float64) (*Realization, error) {
	r := &Realization{Timestamps: timestamps, EndTime: endTime}
	if endTime <= 0 {
		r.EndTime = r.MaxTimestamp()
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Realization) NumNodes() int {
	return len(r.Timestamps)
}

func (r *Realization) NumJumps() (n int) {
	for _, ts := range r.Timestamps {
		n += len(ts)
	}
	return n
}

func (r *Realization) JumpsPerNode() []int {
	counts := make([]int, len(r.Timestamps))
	for i, ts := range r.Timestamps {
		counts[i] = len(ts)
	}
	return counts
}

func (r *Realization) MaxTimestamp() float64 {
	var m float64
	for _, ts := range r.Timestamps {
		if len(ts) > 0 && ts[len(ts)-1] > m {
			m = ts[len(ts)-1]
		}
	}
	return m
}

// WithStates attaches a state path to the realization.
func (r *Realization) WithStates(states []int) (*Realization, error) {
	out := *r
	out.States = states
	if err := out.validateStates(0); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Realization) Validate() error {
	if len(r.Timestamps) == 0 {
		return ErrNoNodes
	}

	for i, ts := range r.Timestamps {
		for k, t := range ts {
			if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
				return errors.Wrapf(ErrUnsorted, "node %d jump %d has invalid time %v", i, k, t)
			}

			if k > 0 && t <= ts[k-1] {
				return errors.Wrapf(ErrUnsorted, "node %d jump %d: %v <= %v", i, k, t, ts[k-1])
			}
		}
	}

	if m := r.MaxTimestamp(); r.EndTime < m {
		return errors.Wrapf(ErrEndTime, "end time %v < %v", r.EndTime, m)
	}

	return r.validateStates(0)
}

// ValidateStates checks the state path against maxState. A zero maxState
// only checks the length and the sign of the entries.
func (r *Realization) ValidateStates(maxState int) error {
	return r.validateStates(maxState)
}

func (r *Realization) validateStates(maxState int) error {
	if r.States == nil {
		return nil
	}

	if len(r.States) != r.NumJumps()+1 {
		return errors.Wrapf(ErrState, "got %d states for %d jumps", len(r.States), r.NumJumps())
	}

	for k, s := range r.States {
		if s < 0 || (maxState > 0 && s >= maxState) {
			return errors.Wrapf(ErrState, "state #%d = %d is out of [0, %d)", k, s, maxState)
		}
	}

	return nil
}
