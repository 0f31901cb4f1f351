package policy

import (
	"context"
	"fmt"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/trace"
)

// TracePolicy steps the wrapped policy and records what its agent did.
type TracePolicy struct {
	inner  sim.Policy
	sensor *sim.Sensor
	act    *sim.Actuator
	trace  *trace.SimulationTrace
}

func NewTracePolicy(inner sim.Policy, sensor *sim.Sensor, act *sim.Actuator, st *trace.SimulationTrace) *TracePolicy {
	return &TracePolicy{inner: inner, sensor: sensor, act: act, trace: st}
}

// SharedTrace returns the decision trace kept in m, creating it on first use.
func SharedTrace(m *sim.PolicyMemory) (*trace.SimulationTrace, error) {
	v, err := m.LoadOrCreate(trace.MemoryKey, func() (any, error) {
		return trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions}), nil
	})
	if err != nil {
		return nil, err
	}
	st, ok := v.(*trace.SimulationTrace)
	if !ok {
		return nil, fmt.Errorf("policy memory %q holds %T, want *trace.SimulationTrace", trace.MemoryKey, v)
	}
	return st, nil
}

func newTraceFromEnv(env sim.PolicyEnv, inner sim.Policy) (sim.Policy, error) {
	st, err := SharedTrace(env.Memory)
	if err != nil {
		return nil, err
	}
	return NewTracePolicy(inner, env.Sensor, env.Actuator, st), nil
}

func (p *TracePolicy) Init() error { return p.inner.Init() }

func (p *TracePolicy) Step(ctx context.Context) error {
	if err := p.inner.Step(ctx); err != nil {
		return err
	}
	p.trace.RecordDecision(trace.DecisionRecord{
		AgentID:         p.sensor.AgentID(),
		Step:            p.sensor.StepCount(),
		Action:          p.act.LastAction().String(),
		Reward:          p.act.LastReward(),
		HazardTriggered: p.act.LastHazardTriggered(),
		Broken:          p.sensor.Broken(),
	})
	return nil
}
