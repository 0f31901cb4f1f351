package policy

import (
	"context"
	"math/rand"
	"testing"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv builds a PolicyEnv for a new agent at (x, y) in w.
func testEnv(t *testing.T, w *sim.GridWorld, id, x, y int, overrides map[string]string) sim.PolicyEnv {
	t.Helper()
	cfg, err := sim.NewConfig(testutil.Settings(t, overrides))
	require.NoError(t, err)
	a := sim.NewAgent(id, x, y)
	w.AddAgent(a)
	rules := sim.ActionRules{Breakable: true, Reward: sim.CoverageReward, RNG: rand.New(rand.NewSource(int64(id) + 1))}
	return sim.PolicyEnv{
		Sensor:   sim.NewSensor(w, a),
		Actuator: sim.NewActuator(w, a, rules),
		RNG:      rand.New(rand.NewSource(int64(id) + 100)),
		Config:   cfg,
		Scenario: &sim.CoverageScenario{},
		Memory:   sim.NewPolicyMemory(),
	}
}

func TestQTable_GreedyBreaksTiesAmongMaxima(t *testing.T) {
	table := NewQTable()
	v := table.Values("s")
	v[sim.MoveUp] = 2
	v[sim.MoveDown] = 2
	v[sim.MoveLeft] = -1

	rng := rand.New(rand.NewSource(1))
	seen := map[sim.Action]int{}
	for i := 0; i < 200; i++ {
		seen[table.Greedy("s", rng)]++
	}

	assert.Len(t, seen, 2)
	assert.Greater(t, seen[sim.MoveUp], 0)
	assert.Greater(t, seen[sim.MoveDown], 0)
	assert.Equal(t, 2.0, table.MaxValue("s"))
	assert.Equal(t, 1, table.Len())
}

func TestQLearnParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  QLearnParams
		wantErr bool
	}{
		{"defaults", QLearnParams{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1}, false},
		{"bounds inclusive", QLearnParams{Alpha: 1, Gamma: 0, Epsilon: 1}, false},
		{"alpha above one", QLearnParams{Alpha: 1.5, Gamma: 0.9, Epsilon: 0.1}, true},
		{"negative epsilon", QLearnParams{Alpha: 0.1, Gamma: 0.9, Epsilon: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, sim.ErrInvalidSetting)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQLearnPolicy_UpdatesTakenAction(t *testing.T) {
	// GIVEN a greedy learner with gamma 0 on an empty grid
	w := testutil.FreeGrid(3, 3)
	env := testEnv(t, w, 0, 1, 1, nil)
	table := NewQTable()
	pre := NeighborhoodPreprocessor{}
	p := NewQLearnPolicy(env.Sensor, env.Actuator, env.RNG, table, pre, QLearnParams{Alpha: 0.5})
	require.NoError(t, p.Init())
	state := pre.State(env.Sensor)

	// WHEN it steps once
	require.NoError(t, p.Step(context.Background()))

	// THEN only the taken action's estimate moved, by alpha * reward
	taken := env.Actuator.LastAction()
	q := table.Values(state)
	for a := sim.MoveRight; a <= sim.CoverInPlace; a++ {
		if a == taken {
			assert.InDelta(t, 0.5*env.Actuator.LastReward(), q[a], 1e-12)
		} else {
			assert.Equal(t, 0.0, q[a], "action %v", a)
		}
	}
	assert.Equal(t, 1, p.Steps())
}

func TestQLearnPolicy_AvoidsBadAction(t *testing.T) {
	// GIVEN a learner whose table already rates covering in place poorly
	w := testutil.FreeGrid(3, 3)
	env := testEnv(t, w, 0, 1, 1, nil)
	table := NewQTable()
	pre := NeighborhoodPreprocessor{}
	state := pre.State(env.Sensor)
	v := table.Values(state)
	for a := range v {
		v[a] = -5
	}
	v[sim.MoveRight] = 1
	p := NewQLearnPolicy(env.Sensor, env.Actuator, env.RNG, table, pre, QLearnParams{Alpha: 0.1, Gamma: 0.9})

	// WHEN it acts greedily
	require.NoError(t, p.Step(context.Background()))

	// THEN it takes the best-rated action
	assert.Equal(t, sim.MoveRight, env.Actuator.LastAction())
	x, y := env.Sensor.Location()
	assert.Equal(t, [2]int{2, 1}, [2]int{x, y})
}

func TestNewQLearnFromEnv_SharesTableThroughMemory(t *testing.T) {
	w := testutil.FreeGrid(4, 4)
	env0 := testEnv(t, w, 0, 0, 0, nil)
	env1 := testEnv(t, w, 1, 3, 3, nil)
	env1.Memory = env0.Memory

	p0, err := newQLearnFromEnv(env0)
	require.NoError(t, err)
	p1, err := newQLearnFromEnv(env1)
	require.NoError(t, err)

	assert.Same(t, p0.(*QLearnPolicy).table, p1.(*QLearnPolicy).table)
	_, ok := env0.Memory.Get(QTableMemoryKey)
	assert.True(t, ok)
}

func TestNewQLearnFromEnv_InvalidParams(t *testing.T) {
	env := testEnv(t, testutil.FreeGrid(2, 2), 0, 0, 0, map[string]string{sim.KeyQLearnGamma: "2"})
	_, err := newQLearnFromEnv(env)
	assert.ErrorIs(t, err, sim.ErrInvalidSetting)
}

func TestNewQLearnFromEnv_PathplanUsesGoal(t *testing.T) {
	env := testEnv(t, testutil.FreeGrid(2, 2), 0, 0, 0, nil)
	env.Scenario = &sim.PathplanScenario{}
	p, err := newQLearnFromEnv(env)
	require.NoError(t, err)
	assert.IsType(t, GoalPreprocessor{}, p.(*QLearnPolicy).pre)
}
