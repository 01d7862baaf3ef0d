package simulation

import (
	"gonum.org/v1/gonum/stat"

	"github.com/c9s/qrhawkes/pkg/events"
)

type NodeSummary struct {
	Node  int
	Jumps int

	// Rate is the number of jumps per unit of time.
	Rate float64

	MeanWaiting   float64
	StdDevWaiting float64
}

type Summary struct {
	Nodes []NodeSummary

	// Occupation[q] is the share of [0, EndTime] spent in state q.
	Occupation []float64
}

// Summarize computes per-node jump statistics and the state occupation of a
// realization. Nodes with fewer than two jumps report zero waiting times.
func Summarize(r *events.Realization, maxState int) Summary {
	var s Summary
	for i, ts := range r.Timestamps {
		ns := NodeSummary{Node: i, Jumps: len(ts)}
		if r.EndTime > 0 {
			ns.Rate = float64(len(ts)) / r.EndTime
		}

		if len(ts) > 1 {
			waiting := make([]float64, len(ts)-1)
			for k := 1; k < len(ts); k++ {
				waiting[k-1] = ts[k] - ts[k-1]
			}
			ns.MeanWaiting, ns.StdDevWaiting = stat.MeanStdDev(waiting, nil)
		}

		s.Nodes = append(s.Nodes, ns)
	}

	if r.States == nil || maxState < 1 || !(r.EndTime > 0) {
		return s
	}

	tl, err := events.NewTimeline(r, maxState)
	if err != nil {
		log.WithError(err).Warn("can not build the timeline for the state occupation")
		return s
	}

	s.Occupation = make([]float64, maxState)
	for k := 0; k < tl.Len(); k++ {
		s.Occupation[tl.States[k]] += (tl.IntervalEnd(k) - tl.Times[k]) / r.EndTime
	}

	return s
}
