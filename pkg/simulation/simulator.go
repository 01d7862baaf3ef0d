package simulation

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
	"github.com/c9s/qrhawkes/pkg/metrics"
)

var log = logrus.WithField("component", "simulation")

const defaultMaxJumps = 1_000_000

var ErrInvalidParams = errors.New("invalid simulation parameters")

// Params describes a state-modulated sum-of-exponentials Hawkes process:
//
//	lambda_i(t) = f_i[n(t-)] (mu_i[n(t-)] + sum_{j,u} alpha_iju g_ju(t))
//
// where g_ju(t) = sum_{t_jk < t} beta_u e^{-beta_u (t - t_jk)}.
type Params struct {
	Decays kernel.Decays `json:"decays" yaml:"decays"`

	// Baselines[i] holds either one value or one value per state.
	Baselines [][]float64 `json:"baselines" yaml:"baselines"`

	// Adjacency[i][j][u] is the weight of decay u in the kernel from j to i.
	Adjacency [][][]float64 `json:"adjacency" yaml:"adjacency"`

	// Factors[i][q] scales the intensity of node i in state q. Nil means 1.
	Factors [][]float64 `json:"factors,omitempty" yaml:"factors,omitempty"`

	MaxState int `json:"maxState" yaml:"maxState"`
}

func (p *Params) NumNodes() int {
	return len(p.Baselines)
}

func (p *Params) Validate() error {
	if err := p.Decays.Validate(); err != nil {
		return err
	}

	n, U := p.NumNodes(), p.Decays.Len()
	if n == 0 {
		return errors.Wrap(ErrInvalidParams, "no baselines")
	}

	if p.MaxState < 1 {
		return errors.Wrapf(ErrInvalidParams, "max state %d < 1", p.MaxState)
	}

	for i, mu := range p.Baselines {
		if len(mu) != 1 && len(mu) != p.MaxState {
			return errors.Wrapf(ErrInvalidParams, "node %d has %d baselines, expected 1 or %d", i, len(mu), p.MaxState)
		}

		for _, v := range mu {
			if v < 0 {
				return errors.Wrapf(ErrInvalidParams, "node %d has a negative baseline", i)
			}
		}
	}

	if len(p.Adjacency) != n {
		return errors.Wrapf(ErrInvalidParams, "adjacency has %d rows, expected %d", len(p.Adjacency), n)
	}

	for i, row := range p.Adjacency {
		if len(row) != n {
			return errors.Wrapf(ErrInvalidParams, "adjacency row %d has %d columns, expected %d", i, len(row), n)
		}

		for j, weights := range row {
			if len(weights) != U {
				return errors.Wrapf(ErrInvalidParams, "adjacency[%d][%d] has %d weights, expected %d", i, j, len(weights), U)
			}

			for _, a := range weights {
				if a < 0 {
					return errors.Wrapf(ErrInvalidParams, "adjacency[%d][%d] is negative", i, j)
				}
			}
		}
	}

	if p.Factors != nil {
		if len(p.Factors) != n {
			return errors.Wrapf(ErrInvalidParams, "got factors for %d nodes, expected %d", len(p.Factors), n)
		}

		for i, f := range p.Factors {
			if len(f) != p.MaxState {
				return errors.Wrapf(ErrInvalidParams, "node %d has %d factors, expected %d", i, len(f), p.MaxState)
			}

			for _, v := range f {
				if v < 0 {
					return errors.Wrapf(ErrInvalidParams, "node %d has a negative factor", i)
				}
			}
		}
	}

	return nil
}

func (p *Params) baseline(i, q int) float64 {
	if len(p.Baselines[i]) == 1 {
		return p.Baselines[i][0]
	}
	return p.Baselines[i][q]
}

func (p *Params) factor(i, q int) float64 {
	if p.Factors == nil {
		return 1
	}
	return p.Factors[i][q]
}

// bounds returns the largest factor and baseline of node i over all states.
func (p *Params) bounds(i int) (factor, baseline float64) {
	for q := 0; q < p.MaxState; q++ {
		factor = math.Max(factor, p.factor(i, q))
		baseline = math.Max(baseline, p.baseline(i, q))
	}
	return factor, baseline
}

// Simulator draws realizations with Ogata's thinning algorithm.
type Simulator struct {
	Params `yaml:",inline"`

	EndTime  float64   `json:"endTime" yaml:"endTime"`
	Scenario string    `json:"scenario" yaml:"scenario"`
	Extra    []float64 `json:"extra,omitempty" yaml:"extra,omitempty"`

	// MaxJumps stops an explosive simulation. Zero uses the default.
	MaxJumps int `json:"maxJumps" yaml:"maxJumps"`
}

type Result struct {
	Realization *events.Realization

	// Quantities holds the policy quantity after each jump, when the policy
	// tracks one.
	Quantities []float64

	// Terminated is set when the state policy stopped the simulation.
	Terminated bool

	// Truncated is set when MaxJumps was reached.
	Truncated bool
}

func (s *Simulator) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return err
	}

	if !(s.EndTime > 0) {
		return errors.Wrapf(ErrInvalidParams, "end time must be positive, got %v", s.EndTime)
	}

	if s.Scenario == ScenarioGenerate && len(s.Extra) > 2 && int(s.Extra[2]) != s.NumNodes() {
		return errors.Wrapf(ErrInvalidParams, "generate declares %d nodes, process has %d", int(s.Extra[2]), s.NumNodes())
	}

	return nil
}

// Simulate draws one realization on [0, EndTime] from the given seed.
func (s *Simulator) Simulate(ctx context.Context, seed int64) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	policy, err := NewStatePolicy(s.Scenario, s.MaxState, s.Extra, rng)
	if err != nil {
		return nil, err
	}

	maxJumps := s.MaxJumps
	if maxJumps <= 0 {
		maxJumps = defaultMaxJumps
	}

	n, U := s.NumNodes(), s.Decays.Len()

	factorMax := make([]float64, n)
	baselineMax := make([]float64, n)
	for i := 0; i < n; i++ {
		factorMax[i], baselineMax[i] = s.bounds(i)
	}

	// excitation[j*U+u] is g_ju at the current time
	excitation := make([]float64, n*U)
	intensity := make([]float64, n)
	timestamps := make([][]float64, n)
	states := []int{policy.State()}

	result := &Result{}
	quantities, tracksQuantity := policy.(QuantityPolicy)

	t := 0.0
	jumps := 0
	for {
		if jumps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// intensities only decay between jumps, so the bound holds until the
		// next accepted candidate
		bound := 0.0
		for i := 0; i < n; i++ {
			bound += factorMax[i] * (baselineMax[i] + s.excite(i, excitation))
		}

		if !(bound > 0) {
			break
		}

		dt := rng.ExpFloat64() / bound
		t += dt
		if t > s.EndTime {
			break
		}

		for j := 0; j < n; j++ {
			for u, beta := range s.Decays {
				excitation[j*U+u] *= math.Exp(-beta * dt)
			}
		}

		state := policy.State()
		total := 0.0
		for i := 0; i < n; i++ {
			intensity[i] = s.factor(i, state) * (s.baseline(i, state) + s.excite(i, excitation))
			total += intensity[i]
		}

		draw := rng.Float64() * bound
		if draw >= total {
			continue
		}

		node := n - 1
		for i, acc := 0, 0.0; i < n; i++ {
			acc += intensity[i]
			if draw < acc {
				node = i
				break
			}
		}

		timestamps[node] = append(timestamps[node], t)
		for u, beta := range s.Decays {
			excitation[node*U+u] += beta
		}
		jumps++

		terminated := policy.Update(node)
		states = append(states, policy.State())
		if tracksQuantity {
			result.Quantities = append(result.Quantities, quantities.Quantity())
		}

		if terminated {
			log.Debugf("state policy terminated the simulation at %v after %d jumps", t, jumps)
			result.Terminated = true
			break
		}

		if jumps >= maxJumps {
			log.Warnf("simulation truncated at %v after %d jumps", t, jumps)
			result.Truncated = true
			break
		}
	}

	r, err := events.New(timestamps, s.EndTime)
	if err != nil {
		return nil, err
	}

	if r, err = r.WithStates(states); err != nil {
		return nil, err
	}

	metrics.AddSimulatedJumps(s.Scenario, jumps)
	result.Realization = r
	return result, nil
}

// excite returns sum_{j,u} alpha_iju g_ju.
func (s *Simulator) excite(i int, excitation []float64) (v float64) {
	U := s.Decays.Len()
	for j, weights := range s.Adjacency[i] {
		for u, a := range weights {
			v += a * excitation[j*U+u]
		}
	}
	return v
}
