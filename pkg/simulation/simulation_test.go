package simulation

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/kernel"
)

func TestNewStatePolicy(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name     string
		scenario string
		maxState int
		extra    []float64
		err      error
	}{
		{name: "random", scenario: ScenarioRandom, maxState: 3},
		{name: "generate", scenario: ScenarioGenerate, maxState: 3, extra: []float64{2, 1, 2, 1, -1}},
		{name: "unknown", scenario: "replay", maxState: 3, err: ErrUnknownScenario},
		{name: "no max state", scenario: ScenarioRandom, maxState: 0, err: ErrPolicyParams},
		{name: "short extra", scenario: ScenarioGenerate, maxState: 3, extra: []float64{2, 1}, err: ErrPolicyParams},
		{name: "missing sizes", scenario: ScenarioGenerate, maxState: 3, extra: []float64{2, 1, 3, 1}, err: ErrPolicyParams},
		{name: "zero average", scenario: ScenarioGenerate, maxState: 3, extra: []float64{2, 0, 1, 1}, err: ErrPolicyParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewStatePolicy(tt.scenario, tt.maxState, tt.extra, rng)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, policy)
		})
	}
}

func TestGeneratePolicy(t *testing.T) {
	p, err := NewGeneratePolicy(5, 3, 2, []float64{1, -2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.State())

	steps := []struct {
		node       int
		quantity   float64
		state      int
		terminated bool
	}{
		{node: 0, quantity: 4, state: 2},
		{node: 0, quantity: 5, state: 3},
		{node: 1, quantity: 3, state: 2},
		{node: 1, quantity: 1, state: 1},
		{node: 1, quantity: 0, state: 0, terminated: true},
	}

	for _, step := range steps {
		assert.Equal(t, step.terminated, p.Update(step.node))
		assert.Equal(t, step.quantity, p.Quantity())
		assert.Equal(t, step.state, p.State())
	}

	clamped, err := NewGeneratePolicy(5, 100, 2, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 4, clamped.State())

	empty, err := NewGeneratePolicy(5, -3, 2, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.State())
	assert.Equal(t, 0.0, empty.Quantity())
}

func TestRandomPolicy(t *testing.T) {
	p, err := NewStatePolicy(ScenarioRandom, 4, nil, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.Equal(t, 0, p.State())

	seen := map[int]bool{}
	for k := 0; k < 200; k++ {
		assert.False(t, p.Update(0))
		assert.GreaterOrEqual(t, p.State(), 0)
		assert.Less(t, p.State(), 4)
		seen[p.State()] = true
	}
	assert.Len(t, seen, 4)
}

func newSimulator(mu, alpha float64, endTime float64) *Simulator {
	return &Simulator{
		Params: Params{
			Decays:    kernel.Decays{3},
			Baselines: [][]float64{{mu}},
			Adjacency: [][][]float64{{{alpha}}},
			MaxState:  1,
		},
		EndTime:  endTime,
		Scenario: ScenarioRandom,
	}
}

func TestSimulator_Rates(t *testing.T) {
	tests := []struct {
		name    string
		sim     *Simulator
		rate    float64
		epsilon float64
	}{
		{name: "poisson", sim: newSimulator(2, 0, 1000), rate: 2, epsilon: 0.1},
		{name: "self exciting", sim: newSimulator(2, 0.5, 2000), rate: 4, epsilon: 0.15},
		{
			name: "modulated",
			sim: func() *Simulator {
				s := newSimulator(1, 0, 1000)
				s.Factors = [][]float64{{3}}
				return s
			}(),
			rate:    3,
			epsilon: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.sim.Simulate(context.Background(), 42)
			require.NoError(t, err)

			r := res.Realization
			assert.False(t, res.Terminated)
			assert.False(t, res.Truncated)
			assert.NoError(t, r.Validate())
			assert.Len(t, r.States, r.NumJumps()+1)
			assert.InEpsilon(t, tt.rate, float64(r.NumJumps())/tt.sim.EndTime, tt.epsilon)
		})
	}
}

func TestSimulator_Reproducible(t *testing.T) {
	sim := &Simulator{
		Params: Params{
			Decays:    kernel.Decays{1, 4},
			Baselines: [][]float64{{0.5, 1}, {0.8}},
			Adjacency: [][][]float64{
				{{0.2, 0.1}, {0.1, 0.1}},
				{{0.3, 0.0}, {0.1, 0.2}},
			},
			Factors:  [][]float64{{1, 2}, {0.5, 1.5}},
			MaxState: 2,
		},
		EndTime:  50,
		Scenario: ScenarioRandom,
	}

	a, err := sim.Simulate(context.Background(), 11)
	require.NoError(t, err)
	b, err := sim.Simulate(context.Background(), 11)
	require.NoError(t, err)

	assert.Equal(t, a.Realization, b.Realization)
	assert.NoError(t, a.Realization.ValidateStates(2))
	assert.Greater(t, a.Realization.NumJumps(), 0)
	assert.Nil(t, a.Quantities)
}

func TestSimulator_GenerateTerminates(t *testing.T) {
	sim := newSimulator(10, 0, 100)
	sim.MaxState = 4
	sim.Scenario = ScenarioGenerate
	sim.Extra = []float64{3, 1, 1, -1}

	res, err := sim.Simulate(context.Background(), 3)
	require.NoError(t, err)

	assert.True(t, res.Terminated)
	assert.Equal(t, 3, res.Realization.NumJumps())
	assert.Equal(t, []int{3, 2, 1, 0}, res.Realization.States)
	assert.Equal(t, []float64{2, 1, 0}, res.Quantities)
	assert.Equal(t, 100.0, res.Realization.EndTime)
}

func TestSimulator_Truncated(t *testing.T) {
	sim := newSimulator(100, 0, 100)
	sim.MaxJumps = 10

	res, err := sim.Simulate(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 10, res.Realization.NumJumps())
}

func TestSimulator_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Simulator)
		err    error
	}{
		{name: "bad decay", mutate: func(s *Simulator) { s.Decays = kernel.Decays{0} }, err: kernel.ErrInvalidDecay},
		{name: "end time", mutate: func(s *Simulator) { s.EndTime = 0 }, err: ErrInvalidParams},
		{name: "negative alpha", mutate: func(s *Simulator) { s.Adjacency[0][0][0] = -1 }, err: ErrInvalidParams},
		{name: "baselines per state", mutate: func(s *Simulator) { s.Baselines[0] = []float64{1, 2} }, err: ErrInvalidParams},
		{name: "factors", mutate: func(s *Simulator) { s.Factors = [][]float64{{1, 1}} }, err: ErrInvalidParams},
		{name: "generate nodes", mutate: func(s *Simulator) {
			s.Scenario = ScenarioGenerate
			s.Extra = []float64{1, 1, 2, 1, 1}
		}, err: ErrInvalidParams},
		{name: "scenario", mutate: func(s *Simulator) { s.Scenario = "replay" }, err: ErrUnknownScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulator(1, 0.1, 10)
			tt.mutate(sim)
			_, err := sim.Simulate(context.Background(), 1)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSimulator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSimulator(1, 0, 10).Simulate(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	r, err := events.New([][]float64{{1, 2, 4}, {}}, 5)
	require.NoError(t, err)
	r, err = r.WithStates([]int{0, 1, 1, 0})
	require.NoError(t, err)

	s := Summarize(r, 2)
	require.Len(t, s.Nodes, 2)
	assert.Equal(t, 3, s.Nodes[0].Jumps)
	assert.InDelta(t, 0.6, s.Nodes[0].Rate, 1e-12)
	assert.InDelta(t, 1.5, s.Nodes[0].MeanWaiting, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), s.Nodes[0].StdDevWaiting, 1e-12)
	assert.Zero(t, s.Nodes[1].Jumps)
	assert.Zero(t, s.Nodes[1].MeanWaiting)

	assert.InDelta(t, 0.4, s.Occupation[0], 1e-12)
	assert.InDelta(t, 0.6, s.Occupation[1], 1e-12)
}
