package events

import (
	"sort"

	"github.com/pkg/errors"
)

// NoOwner marks timeline entries that are not jumps: the origin sentinel and
// the baseline boundary markers.
const NoOwner = -1

// Timeline is the merged view of one realization. Entry 0 is the sentinel at
// time 0, then every jump of every node and every baseline boundary marker in
// time order. States[k] is the state in force on [Times[k], Times[k+1]), the
// last interval ending at EndTime.
type Timeline struct {
	Times        []float64 `msgpack:"times"`
	Owners       []int     `msgpack:"owners"`
	States       []int     `msgpack:"states"`
	EndTime      float64   `msgpack:"endTime"`
	NumNodes     int       `msgpack:"numNodes"`
	MaxState     int       `msgpack:"maxState"`
	JumpsPerNode []int     `msgpack:"jumpsPerNode"`
}

type entry struct {
	time  float64
	owner int
}

// NewTimeline merges the jumps of r. States come from r.States when present
// and are all 0 otherwise. Simultaneous jumps are ordered by node index.
func NewTimeline(r *Realization, maxState int) (*Timeline, error) {
	if maxState < 1 {
		return nil, errors.Wrapf(ErrState, "max state %d < 1", maxState)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := r.ValidateStates(maxState); err != nil {
		return nil, err
	}

	entries := merge(r, nil)
	tl := newTimeline(r, entries, maxState)
	if r.States != nil {
		copy(tl.States, r.States)
	}

	return tl, nil
}

// NewPeriodicTimeline merges the jumps of r with boundary markers splitting
// [0, EndTime] into slots of length period/numBaselines. The state of an
// entry is the index of the slot its time falls into, modulo numBaselines.
func NewPeriodicTimeline(r *Realization, numBaselines int, period float64) (*Timeline, error) {
	if numBaselines < 1 {
		return nil, errors.Wrapf(ErrState, "number of baselines %d < 1", numBaselines)
	}

	if !(period > 0) {
		return nil, errors.Errorf("baseline period must be positive, got %v", period)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	step := period / float64(numBaselines)
	var markers []float64
	for m := 1; float64(m)*step < r.EndTime; m++ {
		markers = append(markers, float64(m)*step)
	}

	entries := merge(r, markers)
	tl := newTimeline(r, entries, numBaselines)

	slot, marker := 0, 0
	for k := 1; k < len(entries); k++ {
		if entries[k].owner == NoOwner {
			marker++
			slot = marker % numBaselines
		}
		tl.States[k] = slot
	}

	return tl, nil
}

func merge(r *Realization, markers []float64) []entry {
	entries := make([]entry, 0, 1+r.NumJumps()+len(markers))
	entries = append(entries, entry{time: 0, owner: NoOwner})

	body := make([]entry, 0, r.NumJumps()+len(markers))
	for _, t := range markers {
		body = append(body, entry{time: t, owner: NoOwner})
	}

	for i, ts := range r.Timestamps {
		for _, t := range ts {
			body = append(body, entry{time: t, owner: i})
		}
	}

	// markers go first on ties, then nodes by index
	sort.SliceStable(body, func(a, b int) bool {
		if body[a].time != body[b].time {
			return body[a].time < body[b].time
		}
		return body[a].owner < body[b].owner
	})

	return append(entries, body...)
}

func newTimeline(r *Realization, entries []entry, maxState int) *Timeline {
	tl := &Timeline{
		Times:        make([]float64, len(entries)),
		Owners:       make([]int, len(entries)),
		States:       make([]int, len(entries)),
		EndTime:      r.EndTime,
		NumNodes:     r.NumNodes(),
		MaxState:     maxState,
		JumpsPerNode: r.JumpsPerNode(),
	}

	for k, e := range entries {
		tl.Times[k] = e.time
		tl.Owners[k] = e.owner
	}

	return tl
}

// Len returns the number of entries including the sentinel.
func (tl *Timeline) Len() int {
	return len(tl.Times)
}

func (tl *Timeline) NumJumps() (n int) {
	for _, c := range tl.JumpsPerNode {
		n += c
	}
	return n
}

// IntervalEnd returns the time at which the interval opened by entry k ends.
func (tl *Timeline) IntervalEnd(k int) float64 {
	if k+1 < len(tl.Times) {
		return tl.Times[k+1]
	}
	return tl.EndTime
}

// JumpIndices returns, for every node, the timeline positions of its jumps.
func (tl *Timeline) JumpIndices() [][]int {
	indices := make([][]int, tl.NumNodes)
	for i := range indices {
		indices[i] = make([]int, 0, tl.JumpsPerNode[i])
	}

	for k, owner := range tl.Owners {
		if owner != NoOwner {
			indices[owner] = append(indices[owner], k)
		}
	}

	return indices
}
