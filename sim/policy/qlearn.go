package policy

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/adversarial-coverage/adsim/sim"
)

// QTableMemoryKey is the policy-memory key the shared Q-table is stored under.
const QTableMemoryKey = "qlearn.table"

// QTable maps a state key to one value estimate per action. It is shared by
// every Q-learning agent of a simulation and survives across runs.
type QTable struct {
	values map[string]*[sim.NumActions]float64
}

func NewQTable() *QTable {
	return &QTable{values: make(map[string]*[sim.NumActions]float64)}
}

// Values returns the estimates for state, allocating zeros on first access.
func (t *QTable) Values(state string) *[sim.NumActions]float64 {
	v, ok := t.values[state]
	if !ok {
		v = new([sim.NumActions]float64)
		t.values[state] = v
	}
	return v
}

// Len returns the number of states seen.
func (t *QTable) Len() int { return len(t.values) }

// MaxValue returns the largest estimate for state.
func (t *QTable) MaxValue(state string) float64 {
	v := t.Values(state)
	best := v[0]
	for _, q := range v[1:] {
		best = max(best, q)
	}
	return best
}

// Greedy returns the best action for state; ties go to a uniformly chosen candidate.
func (t *QTable) Greedy(state string, rng *rand.Rand) sim.Action {
	v := t.Values(state)
	best := t.MaxValue(state)
	var candidates [sim.NumActions]sim.Action
	n := 0
	for a, q := range v {
		if q == best {
			candidates[n] = sim.Action(a)
			n++
		}
	}
	return candidates[rng.Intn(n)]
}

// QLearnParams are the learning hyper-parameters.
type QLearnParams struct {
	Alpha   float64 // learning rate, in [0, 1]
	Gamma   float64 // discount, in [0, 1]
	Epsilon float64 // exploration probability, in [0, 1]
}

// Validate checks parameter ranges.
func (p QLearnParams) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"alpha", p.Alpha}, {"gamma", p.Gamma}, {"epsilon", p.Epsilon}} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("qlearn %s %g must be in [0, 1]: %w", f.name, f.v, sim.ErrInvalidSetting)
		}
	}
	return nil
}

func qlearnParams(s *sim.Settings) (QLearnParams, error) {
	var p QLearnParams
	var err error
	if p.Alpha, err = s.Float(sim.KeyQLearnAlpha); err != nil {
		return p, err
	}
	if p.Gamma, err = s.Float(sim.KeyQLearnGamma); err != nil {
		return p, err
	}
	if p.Epsilon, err = s.Float(sim.KeyQLearnEpsilon); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// QLearnPolicy is epsilon-greedy one-step tabular Q-learning. Each Step
// observes, acts, and immediately updates the estimate of the action taken
// using the reward the Actuator reported and the state after the action.
type QLearnPolicy struct {
	sensor *sim.Sensor
	act    *sim.Actuator
	rng    *rand.Rand
	table  *QTable
	pre    StatePreprocessor
	params QLearnParams

	steps int
}

// NewQLearnPolicy builds a Q-learning policy with explicit dependencies.
func NewQLearnPolicy(sensor *sim.Sensor, act *sim.Actuator, rng *rand.Rand, table *QTable, pre StatePreprocessor, params QLearnParams) *QLearnPolicy {
	return &QLearnPolicy{sensor: sensor, act: act, rng: rng, table: table, pre: pre, params: params}
}

func newQLearnFromEnv(env sim.PolicyEnv) (sim.Policy, error) {
	params, err := qlearnParams(env.Config.Settings)
	if err != nil {
		return nil, err
	}
	v, err := env.Memory.LoadOrCreate(QTableMemoryKey, func() (any, error) { return NewQTable(), nil })
	if err != nil {
		return nil, err
	}
	table, ok := v.(*QTable)
	if !ok {
		return nil, fmt.Errorf("policy memory %q holds %T, want *QTable", QTableMemoryKey, v)
	}
	return NewQLearnPolicy(env.Sensor, env.Actuator, env.RNG, table, preprocessorFor(env.Scenario), params), nil
}

func (p *QLearnPolicy) Init() error {
	p.steps = 0
	return nil
}

func (p *QLearnPolicy) Step(context.Context) error {
	state := p.pre.State(p.sensor)
	action := p.choose(state)
	p.act.TakeAction(action)
	p.steps++

	target := p.act.LastReward()
	if !p.sensor.Broken() {
		target += p.params.Gamma * p.table.MaxValue(p.pre.State(p.sensor))
	}
	q := p.table.Values(state)
	q[action] += p.params.Alpha * (target - q[action])
	return nil
}

func (p *QLearnPolicy) choose(state string) sim.Action {
	if p.rng.Float64() < p.params.Epsilon {
		return sim.Action(p.rng.Intn(sim.NumActions))
	}
	return p.table.Greedy(state, p.rng)
}

// Steps returns the number of actions taken this run.
func (p *QLearnPolicy) Steps() int { return p.steps }
