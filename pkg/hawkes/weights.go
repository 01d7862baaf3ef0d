package hawkes

import (
	"time"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
	"github.com/c9s/qrhawkes/pkg/parallel"
)

// Statistics is the read-only view objectives take of the sufficient
// statistics of one realization. States index the piecewise-constant
// regimes of the observation (state path values or baseline slots).
type Statistics interface {
	NumNodes() int
	NumDecays() int
	MaxState() int
	NumJumps() int
	EndTime() float64

	// Length is the total time spent in state q.
	Length(q int) float64

	// Count is the number of jumps of node i that occurred in state q.
	Count(i, q int) float64

	// Integrated is the integral of g_ju over the time spent in state q.
	Integrated(j, q, u int) float64

	// Cross is the integral of g_ju * g_jj,uu over the time spent in state q.
	Cross(j, jj, u, uu, q int) float64

	// CrossTotal is Cross summed over the states.
	CrossTotal(j, jj, u, uu int) float64

	// OwnedExcitation is the sum of g_ju at the jumps of node i.
	OwnedExcitation(j, i, u int) float64
}

var _ Statistics = (*Weights)(nil)

// Weights caches the statistics of one realization on its merged timeline.
//
// g_ju at timeline entry k is the excitation from node j through decay u
// just before the entry: the sum over jumps t of j strictly before
// Times[k] of beta_u e^{-beta_u (Times[k] - t)}. Entry Len() stands for
// the end time.
type Weights struct {
	timeline *events.Timeline
	shape    kernel.Shape
	model    string

	nodes, decays, states int
	withCross             bool

	// g[j][k*U+u]
	g [][]float64

	// after[j][k*U+u] is g_ju right after entry k, only kept with cross
	after [][]float64

	// bigG[j][q*U+u]
	bigG [][]float64

	// h[j][((jj*U+u)*U+uu)*M+q]
	h [][]float64

	// hTotal[j][(jj*U+u)*U+uu]
	hTotal [][]float64

	// d[j][i*U+u]
	d [][]float64

	// count[i][q]
	count [][]float64

	length    []float64
	jumpIndex [][]int
	computed  bool
}

// NewWeights prepares the cache of one timeline. withCross enables the
// quadratic statistics the least-squares contrast needs.
func NewWeights(timeline *events.Timeline, shape kernel.Shape, withCross bool) *Weights {
	return &Weights{
		timeline:  timeline,
		shape:     shape,
		model:     "weights",
		nodes:     timeline.NumNodes,
		decays:    shape.NumDecays(),
		states:    timeline.MaxState,
		withCross: withCross,
	}
}

func (w *Weights) allocate() {
	n, U, M, K := w.nodes, w.decays, w.states, w.timeline.Len()

	w.g = make([][]float64, n)
	w.bigG = make([][]float64, n)
	w.d = make([][]float64, n)
	w.count = make([][]float64, n)
	if w.withCross {
		w.h = make([][]float64, n)
		w.hTotal = make([][]float64, n)
		w.after = make([][]float64, n)
	}

	for j := 0; j < n; j++ {
		w.g[j] = make([]float64, (K+1)*U)
		w.bigG[j] = make([]float64, M*U)
		w.d[j] = make([]float64, n*U)
		w.count[j] = make([]float64, M)
		if w.withCross {
			w.h[j] = make([]float64, n*U*U*M)
			w.hTotal[j] = make([]float64, n*U*U)
			w.after[j] = make([]float64, K*U)
		}
	}

	w.length = make([]float64, M)
	w.jumpIndex = w.timeline.JumpIndices()
}

// Compute fills the cache. Nodes are processed in parallel: first the
// per-node recurrences, then, after every node is done, the cross terms
// which read the excitations of all nodes.
func (w *Weights) Compute(threads int) {
	start := time.Now()

	w.allocate()
	w.computeLengthAndCount()
	parallel.Run(threads, w.nodes, w.computeNode)
	if w.withCross {
		parallel.Run(threads, w.nodes, w.computeCross)
		w.after = nil
	}

	w.computed = true

	elapsed := time.Since(start)
	metrics.ObserveWeightComputation(w.model, w.NumJumps(), elapsed)
	log.Debugf("computed %s weights: %d nodes, %d jumps, %d states in %s",
		w.model, w.nodes, w.NumJumps(), w.states, elapsed)
}

func (w *Weights) computeLengthAndCount() {
	tl := w.timeline
	K := tl.Len()
	for k := 1; k <= K; k++ {
		q := tl.States[k-1]
		w.length[q] += w.timeAt(k) - tl.Times[k-1]

		if k < K && tl.Owners[k] != events.NoOwner {
			w.count[tl.Owners[k]][q]++
		}
	}
}

// timeAt returns the time of entry k, the end time for k == Len().
func (w *Weights) timeAt(k int) float64 {
	if k < w.timeline.Len() {
		return w.timeline.Times[k]
	}
	return w.timeline.EndTime
}

func (w *Weights) computeNode(j int) {
	tl := w.timeline
	K, U := tl.Len(), w.decays
	g, bigG, d := w.g[j], w.bigG[j], w.d[j]

	for u := 0; u < U; u++ {
		beta := w.shape.Decay(u)

		// excitation right after entry k-1, jumps at Times[k-1] included
		after := 0.0
		for k := 1; k <= K; k++ {
			if tl.Owners[k-1] == j {
				after += beta
			}
			if w.withCross {
				w.after[j][(k-1)*U+u] = after
			}

			dt := w.timeAt(k) - tl.Times[k-1]
			factor, integral := w.shape.Recurrence(dt, u)
			q := tl.States[k-1]
			bigG[q*U+u] += integral * after

			if dt > 0 {
				after *= factor
				g[k*U+u] = after
			} else {
				// simultaneous jumps do not excite each other
				g[k*U+u] = g[(k-1)*U+u]
			}

			if k < K && tl.Owners[k] != events.NoOwner {
				d[tl.Owners[k]*U+u] += g[k*U+u]
			}
		}
	}
}

func (w *Weights) computeCross(j int) {
	tl := w.timeline
	n, U, M := w.nodes, w.decays, w.states
	h, hTotal := w.h[j], w.hTotal[j]

	cross := make([]float64, U*U)
	x1 := make([]float64, U)

	for k := 0; k < tl.Len(); k++ {
		dt := tl.IntervalEnd(k) - tl.Times[k]
		if dt <= 0 {
			continue
		}

		nonZero := false
		for u := 0; u < U; u++ {
			x1[u] = w.after[j][k*U+u]
			nonZero = nonZero || x1[u] != 0
		}

		if !nonZero {
			continue
		}

		for u := 0; u < U; u++ {
			for uu := 0; uu < U; uu++ {
				cross[u*U+uu] = w.shape.CrossIntegral(dt, u, uu)
			}
		}

		q := tl.States[k]
		for jj := 0; jj < n; jj++ {
			for u := 0; u < U; u++ {
				for uu := 0; uu < U; uu++ {
					v := cross[u*U+uu] * x1[u] * w.after[jj][k*U+uu]
					idx := (jj*U+u)*U + uu
					h[idx*M+q] += v
					hTotal[idx] += v
				}
			}
		}
	}
}

func (w *Weights) Computed() bool {
	return w.computed
}

func (w *Weights) Timeline() *events.Timeline {
	return w.timeline
}

func (w *Weights) NumNodes() int {
	return w.nodes
}

func (w *Weights) NumDecays() int {
	return w.decays
}

func (w *Weights) MaxState() int {
	return w.states
}

func (w *Weights) NumJumps() int {
	return w.timeline.NumJumps()
}

func (w *Weights) EndTime() float64 {
	return w.timeline.EndTime
}

func (w *Weights) Length(q int) float64 {
	return w.length[q]
}

func (w *Weights) Count(i, q int) float64 {
	return w.count[i][q]
}

func (w *Weights) Integrated(j, q, u int) float64 {
	return w.bigG[j][q*w.decays+u]
}

func (w *Weights) Cross(j, jj, u, uu, q int) float64 {
	return w.h[j][((jj*w.decays+u)*w.decays+uu)*w.states+q]
}

func (w *Weights) CrossTotal(j, jj, u, uu int) float64 {
	return w.hTotal[j][(jj*w.decays+u)*w.decays+uu]
}

func (w *Weights) OwnedExcitation(j, i, u int) float64 {
	return w.d[j][i*w.decays+u]
}

// Excitation returns g_ju just before timeline entry k.
func (w *Weights) Excitation(j, k, u int) float64 {
	return w.g[j][k*w.decays+u]
}

// JumpIndices returns the timeline positions of the jumps of node i.
func (w *Weights) JumpIndices(i int) []int {
	return w.jumpIndex[i]
}
