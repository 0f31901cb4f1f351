package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adversarial-coverage/adsim/sim"
)

// OracleMemoryKey is the policy-memory key the shared oracle is stored under.
const OracleMemoryKey = "external.oracle"

// ErrNoOracleCommand is returned when an oracle-backed policy is selected but
// no oracle command is configured.
var ErrNoOracleCommand = errors.New("policy.external.command is not set")

// CellObservation describes one cell around the agent.
type CellObservation struct {
	Action     string  `json:"action"` // the action that leads to this cell
	OnGrid     bool    `json:"on_grid"`
	Obstacle   bool    `json:"obstacle"`
	Occupied   bool    `json:"occupied"`
	Covered    bool    `json:"covered"`
	CoverCount int     `json:"cover_count"`
	Hazard     float64 `json:"hazard"`
}

// Observation is what an Oracle sees before choosing an action.
type Observation struct {
	AgentID    int               `json:"agent_id"`
	X          int               `json:"x"`
	Y          int               `json:"y"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Step       int               `json:"step"`
	LastAction int               `json:"last_action"` // -1 before the first action
	LastReward float64           `json:"last_reward"`
	Cells      []CellObservation `json:"cells"` // right, up, left, down, own cell
}

// Observe builds the Observation for the agent behind s and act.
func Observe(s *sim.Sensor, act *sim.Actuator) Observation {
	x, y := s.Location()
	w, h := s.GridSize()
	obs := Observation{
		AgentID:    s.AgentID(),
		X:          x,
		Y:          y,
		Width:      w,
		Height:     h,
		Step:       s.StepCount(),
		LastAction: int(act.LastAction()),
		LastReward: act.LastReward(),
		Cells:      make([]CellObservation, 0, sim.NumActions),
	}
	for a := sim.MoveRight; a <= sim.CoverInPlace; a++ {
		c, ok := s.Neighbor(a)
		co := CellObservation{Action: a.String(), OnGrid: ok}
		if ok {
			co.Obstacle = c.IsObstacle()
			co.Occupied = a != sim.CoverInPlace && s.IsOccupied(c.X, c.Y)
			co.Covered = c.IsCovered()
			co.CoverCount = c.CoverCount
			co.Hazard = c.HazardProb
		}
		obs.Cells = append(obs.Cells, co)
	}
	return obs
}

// Oracle is an out-of-process decision-maker. ChooseAction returns an action
// id; ids outside [0, NumActions) mean "cover in place" for a base policy and
// "defer" for the external meta policy.
type Oracle interface {
	ChooseAction(ctx context.Context, obs Observation) (int, error)
}

// NewOracle connects the oracle named by a command line. Replaced in tests.
var NewOracle = func(ctx context.Context, command string) (Oracle, error) {
	return DialMCPOracle(ctx, command)
}

// sharedOracle returns the simulation-wide oracle, connecting on first use.
func sharedOracle(env sim.PolicyEnv) (Oracle, error) {
	v, err := env.Memory.LoadOrCreate(OracleMemoryKey, func() (any, error) {
		command, err := env.Config.Settings.String(sim.KeyExternalCommand)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(command) == "" {
			return nil, ErrNoOracleCommand
		}
		return NewOracle(context.Background(), command)
	})
	if err != nil {
		return nil, fmt.Errorf("external oracle: %w", err)
	}
	o, ok := v.(Oracle)
	if !ok {
		return nil, fmt.Errorf("policy memory %q holds %T, want Oracle", OracleMemoryKey, v)
	}
	return o, nil
}

// ExternalPolicy forwards every decision to an Oracle and keeps local
// bookkeeping of what it did.
type ExternalPolicy struct {
	sensor *sim.Sensor
	act    *sim.Actuator
	oracle Oracle

	steps            int
	cumulativeReward float64
}

func NewExternalPolicy(sensor *sim.Sensor, act *sim.Actuator, oracle Oracle) *ExternalPolicy {
	return &ExternalPolicy{sensor: sensor, act: act, oracle: oracle}
}

func newExternalFromEnv(env sim.PolicyEnv) (sim.Policy, error) {
	o, err := sharedOracle(env)
	if err != nil {
		return nil, err
	}
	return NewExternalPolicy(env.Sensor, env.Actuator, o), nil
}

func (p *ExternalPolicy) Init() error {
	p.steps = 0
	p.cumulativeReward = 0
	return nil
}

// Step asks the oracle for an action and applies it. Oracle errors are fatal to the run.
func (p *ExternalPolicy) Step(ctx context.Context) error {
	id, err := p.oracle.ChooseAction(ctx, Observe(p.sensor, p.act))
	if err != nil {
		return fmt.Errorf("agent %d: %w", p.sensor.AgentID(), err)
	}
	p.act.TakeActionByID(id)
	p.steps++
	p.cumulativeReward += p.act.LastReward()
	return nil
}

func (p *ExternalPolicy) Steps() int                { return p.steps }
func (p *ExternalPolicy) CumulativeReward() float64 { return p.cumulativeReward }
func (p *ExternalPolicy) LastAction() sim.Action    { return p.act.LastAction() }

// ExternalMetaPolicy lets an Oracle override the wrapped policy. A negative
// action id defers the decision to the wrapped policy.
type ExternalMetaPolicy struct {
	inner  sim.Policy
	sensor *sim.Sensor
	act    *sim.Actuator
	oracle Oracle

	overrides int
	deferrals int
}

func NewExternalMetaPolicy(inner sim.Policy, sensor *sim.Sensor, act *sim.Actuator, oracle Oracle) *ExternalMetaPolicy {
	return &ExternalMetaPolicy{inner: inner, sensor: sensor, act: act, oracle: oracle}
}

func newExternalMetaFromEnv(env sim.PolicyEnv, inner sim.Policy) (sim.Policy, error) {
	o, err := sharedOracle(env)
	if err != nil {
		return nil, err
	}
	return NewExternalMetaPolicy(inner, env.Sensor, env.Actuator, o), nil
}

func (p *ExternalMetaPolicy) Init() error {
	p.overrides = 0
	p.deferrals = 0
	return p.inner.Init()
}

func (p *ExternalMetaPolicy) Step(ctx context.Context) error {
	id, err := p.oracle.ChooseAction(ctx, Observe(p.sensor, p.act))
	if err != nil {
		return fmt.Errorf("agent %d: %w", p.sensor.AgentID(), err)
	}
	if id < 0 {
		p.deferrals++
		return p.inner.Step(ctx)
	}
	p.overrides++
	p.act.TakeActionByID(id)
	return nil
}

// Overrides and Deferrals count this run's decisions taken by the oracle and
// by the wrapped policy.
func (p *ExternalMetaPolicy) Overrides() int { return p.overrides }
func (p *ExternalMetaPolicy) Deferrals() int { return p.deferrals }

