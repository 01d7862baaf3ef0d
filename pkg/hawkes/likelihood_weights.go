package hawkes

import (
	"time"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
	"github.com/c9s/qrhawkes/pkg/parallel"
)

// nodeWeights is the cache of one node anchored on its own jumps t_0 < ...
// < t_{N-1}, with t_N standing for the end time. Entries are laid out as
// [k*width + j*U + u] with width = n*U.
type nodeWeights struct {
	// Excitation[k] is g_ju just before t_k.
	Excitation []float64 `msgpack:"excitation"`

	// Integrated[k] is the integral of g_ju over (t_{k-1}, t_k], t_{-1} = 0.
	Integrated []float64 `msgpack:"integrated"`

	// SumIntegrated is Integrated summed over k.
	SumIntegrated []float64 `msgpack:"sumIntegrated"`

	// Gaps[k] = t_k - t_{k-1}, Gaps[N] = T - t_{N-1}.
	Gaps []float64 `msgpack:"gaps"`
}

type likelihoodWeights struct {
	Realization *events.Realization `msgpack:"realization,omitempty"`

	Nodes    []nodeWeights `msgpack:"nodes"`
	EndTime  float64       `msgpack:"endTime"`
	Jumps    []int         `msgpack:"jumps"`
	Computed bool          `msgpack:"computed"`
}

func newLikelihoodWeights(r *events.Realization) *likelihoodWeights {
	return &likelihoodWeights{
		Realization: r,
		EndTime:     r.EndTime,
		Jumps:       r.JumpsPerNode(),
	}
}

func (w *likelihoodWeights) numJumps() (n int) {
	for _, c := range w.Jumps {
		n += c
	}
	return n
}

func (w *likelihoodWeights) compute(shape kernel.Shape, threads int) {
	start := time.Now()

	n := len(w.Jumps)
	w.Nodes = make([]nodeWeights, n)
	parallel.Run(threads, n, func(i int) {
		w.computeNode(shape, i)
	})

	// only the cache is needed from now on
	w.Realization = nil
	w.Computed = true

	metrics.ObserveWeightComputation(logLikelihoodModel, w.numJumps(), time.Since(start))
	log.Debugf("computed likelihood weights: %d nodes, %d jumps in %s", n, w.numJumps(), time.Since(start))
}

func (w *likelihoodWeights) computeNode(shape kernel.Shape, i int) {
	r := w.Realization
	n, U := len(w.Jumps), shape.NumDecays()
	width := n * U

	ti := r.Timestamps[i]
	N := len(ti)
	T := r.EndTime

	nw := nodeWeights{
		Excitation:    make([]float64, N*width),
		Integrated:    make([]float64, (N+1)*width),
		SumIntegrated: make([]float64, width),
		Gaps:          make([]float64, N+1),
	}

	for k := 0; k <= N; k++ {
		prev := 0.0
		if k > 0 {
			prev = ti[k-1]
		}
		if k < N {
			nw.Gaps[k] = ti[k] - prev
		} else {
			nw.Gaps[k] = T - prev
		}
	}

	for j := 0; j < n; j++ {
		tj := r.Timestamps[j]
		for u := 0; u < U; u++ {
			beta := shape.Decay(u)
			idx := j*U + u

			next := 0
			for k := 0; k <= N; k++ {
				tk := T
				if k < N {
					tk = ti[k]
				}

				if k > 0 {
					factor, integral := shape.Recurrence(tk-ti[k-1], u)
					prev := nw.Excitation[(k-1)*width+idx]
					if k < N {
						nw.Excitation[k*width+idx] = prev * factor
					}
					nw.Integrated[k*width+idx] = prev * integral
				}

				for ; next < len(tj) && tj[next] < tk; next++ {
					factor, _ := shape.Recurrence(tk-tj[next], u)
					if k < N {
						nw.Excitation[k*width+idx] += beta * factor
					}
					nw.Integrated[k*width+idx] += 1 - factor
				}

				nw.SumIntegrated[idx] += nw.Integrated[k*width+idx]
			}
		}
	}

	w.Nodes[i] = nw
}
