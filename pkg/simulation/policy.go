package simulation

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Scenarios
const (
	ScenarioRandom   = "random"
	ScenarioGenerate = "generate"
)

var (
	ErrUnknownScenario = errors.New("unknown simulation scenario")
	ErrPolicyParams    = errors.New("invalid state policy parameters")
)

// StatePolicy drives the state path of a simulation. Update is called after
// every accepted jump and returns true when the simulation must stop.
type StatePolicy interface {
	State() int
	Update(node int) (terminated bool)
}

// QuantityPolicy is implemented by policies that track an underlying
// quantity, e.g. the queue size behind the state.
type QuantityPolicy interface {
	StatePolicy
	Quantity() float64
}

// NewStatePolicy creates the policy of the given scenario.
//
// The "generate" scenario reads its parameters from extra:
// [initial quantity, average size, number of nodes, size of node 0, ...].
func NewStatePolicy(scenario string, maxState int, extra []float64, rng *rand.Rand) (StatePolicy, error) {
	if maxState < 1 {
		return nil, errors.Wrapf(ErrPolicyParams, "max state %d < 1", maxState)
	}

	switch scenario {
	case ScenarioRandom:
		return &RandomPolicy{maxState: maxState, rng: rng}, nil

	case ScenarioGenerate:
		if len(extra) < 3 {
			return nil, errors.Wrapf(ErrPolicyParams, "generate needs at least 3 extra values, got %d", len(extra))
		}

		dim := int(extra[2])
		if dim < 1 || len(extra) < 3+dim {
			return nil, errors.Wrapf(ErrPolicyParams, "generate declares %d sizes but got %d values", dim, len(extra)-3)
		}

		return NewGeneratePolicy(maxState, extra[0], extra[1], extra[3:3+dim])
	}

	return nil, errors.Wrapf(ErrUnknownScenario, "%q", scenario)
}

// RandomPolicy draws the state after each jump uniformly.
type RandomPolicy struct {
	maxState int
	state    int
	rng      *rand.Rand
}

func (p *RandomPolicy) State() int {
	return p.state
}

func (p *RandomPolicy) Update(int) bool {
	p.state = p.rng.Intn(p.maxState)
	return false
}

// GeneratePolicy keeps a running quantity that each jump of node i moves by
// sizes[i]. The state is ceil(quantity / avg) clamped to [0, maxState-1].
// Once the quantity drops to zero or below it is reset to zero and the
// simulation stops.
type GeneratePolicy struct {
	maxState int
	avg      float64
	sizes    []float64

	quantity float64
	state    int
}

func NewGeneratePolicy(maxState int, quantity, avg float64, sizes []float64) (*GeneratePolicy, error) {
	if !(avg > 0) {
		return nil, errors.Wrapf(ErrPolicyParams, "average size must be positive, got %v", avg)
	}

	p := &GeneratePolicy{
		maxState: maxState,
		avg:      avg,
		sizes:    append([]float64{}, sizes...),
		quantity: quantity,
	}
	p.settle()
	return p, nil
}

func (p *GeneratePolicy) settle() bool {
	if p.quantity <= 0 {
		p.quantity = 0
		p.state = 0
		return true
	}

	state := math.Ceil(p.quantity / p.avg)
	if state > float64(p.maxState-1) {
		state = float64(p.maxState - 1)
	}
	p.state = int(state)
	return false
}

func (p *GeneratePolicy) NumNodes() int {
	return len(p.sizes)
}

func (p *GeneratePolicy) State() int {
	return p.state
}

func (p *GeneratePolicy) Quantity() float64 {
	return p.quantity
}

func (p *GeneratePolicy) Update(node int) bool {
	p.quantity += p.sizes[node]
	return p.settle()
}
