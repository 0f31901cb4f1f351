package sim

import (
	"fmt"
	"math/rand"
)

// Agent is one autonomous unit on the grid. Its id is unique and stable for a run.
type Agent struct {
	ID     int
	X, Y   int
	Broken bool
	Policy Policy
}

// NewAgent creates an unbroken agent at (x, y) with no policy.
func NewAgent(id, x, y int) *Agent {
	return &Agent{ID: id, X: x, Y: y}
}

func (a *Agent) Location() (int, int) { return a.X, a.Y }

func (a *Agent) SetLocation(x, y int) {
	a.X = x
	a.Y = y
}

// Action identifies one of the five primitive actions. The numeric values are
// the action ids used by index-driven policies.
type Action int

const (
	MoveRight Action = iota
	MoveUp
	MoveLeft
	MoveDown
	CoverInPlace
)

// NumActions is the size of the action space.
const NumActions = 5

// NoAction is reported by Actuator.LastAction before the first action of a run.
const NoAction Action = -1

func (a Action) String() string {
	switch a {
	case MoveRight:
		return "right"
	case MoveUp:
		return "up"
	case MoveLeft:
		return "left"
	case MoveDown:
		return "down"
	case CoverInPlace:
		return "cover"
	case NoAction:
		return "none"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Delta returns the coordinate offset of a movement action. "Up" is +y.
func (a Action) Delta() (dx, dy int) {
	switch a {
	case MoveRight:
		return 1, 0
	case MoveUp:
		return 0, 1
	case MoveLeft:
		return -1, 0
	case MoveDown:
		return 0, -1
	default:
		return 0, 0
	}
}

// AgentView is a read-only snapshot of an agent for sensors and displays.
type AgentView struct {
	ID     int
	X, Y   int
	Broken bool
}

// Sensor is the read-only observation capability handed to a policy.
// Cells are returned by value so a policy cannot mutate the world through it.
type Sensor struct {
	world *GridWorld
	agent *Agent
}

func NewSensor(w *GridWorld, a *Agent) *Sensor {
	return &Sensor{world: w, agent: a}
}

func (s *Sensor) AgentID() int           { return s.agent.ID }
func (s *Sensor) Location() (int, int)   { return s.agent.X, s.agent.Y }
func (s *Sensor) Broken() bool           { return s.agent.Broken }
func (s *Sensor) GridSize() (int, int)   { return s.world.width, s.world.height }
func (s *Sensor) StepCount() int         { return s.world.stepCount }
func (s *Sensor) IsOnGrid(x, y int) bool { return s.world.IsOnGrid(x, y) }

// Cell returns a copy of the cell at (x, y); false when off grid.
func (s *Sensor) Cell(x, y int) (Cell, bool) {
	c, ok := s.world.Cell(x, y)
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// CurrentCell returns a copy of the cell the agent stands on.
func (s *Sensor) CurrentCell() Cell {
	c, _ := s.Cell(s.agent.X, s.agent.Y)
	return c
}

// Neighbor returns a copy of the cell one movement action away.
func (s *Sensor) Neighbor(a Action) (Cell, bool) {
	dx, dy := a.Delta()
	return s.Cell(s.agent.X+dx, s.agent.Y+dy)
}

// IsOccupied reports whether any agent other than this one stands on (x, y).
func (s *Sensor) IsOccupied(x, y int) bool {
	for _, a := range s.world.agents {
		if a != s.agent && a.X == x && a.Y == y {
			return true
		}
	}
	return false
}

// Agents returns snapshots of every agent in activation order.
func (s *Sensor) Agents() []AgentView {
	views := make([]AgentView, 0, len(s.world.agents))
	for _, a := range s.world.agents {
		views = append(views, AgentView{ID: a.ID, X: a.X, Y: a.Y, Broken: a.Broken})
	}
	return views
}

// CoverRecorder receives exactly one call per cover event.
type CoverRecorder interface {
	UpdateCellCovered(a *Agent)
}

// ActionRules are the run-wide parameters the Actuator applies after every action.
type ActionRules struct {
	Breakable bool       // a triggered hazard breaks the agent
	Reward    RewardFunc // nil yields a zero reward
	Recorder  CoverRecorder
	RNG       *rand.Rand
}

// Actuator is the mutating action capability handed to a policy.
//
// Callers must not dispatch actions for a broken agent; GridWorld.Step
// enforces that and the Actuator does not re-check it.
type Actuator struct {
	world *GridWorld
	agent *Agent
	rules ActionRules

	lastReward float64
	lastAction Action
	lastHazard bool
}

func NewActuator(w *GridWorld, a *Agent, rules ActionRules) *Actuator {
	return &Actuator{world: w, agent: a, rules: rules, lastAction: NoAction}
}

func (act *Actuator) MoveRight()          { act.TakeAction(MoveRight) }
func (act *Actuator) MoveUp()             { act.TakeAction(MoveUp) }
func (act *Actuator) MoveLeft()           { act.TakeAction(MoveLeft) }
func (act *Actuator) MoveDown()           { act.TakeAction(MoveDown) }
func (act *Actuator) CoverInPlace()       { act.TakeAction(CoverInPlace) }
func (act *Actuator) LastReward() float64 { return act.lastReward }
func (act *Actuator) LastAction() Action  { return act.lastAction }

// LastHazardTriggered reports whether the most recent action's hazard draw hit.
func (act *Actuator) LastHazardTriggered() bool { return act.lastHazard }

// TakeActionByID dispatches an index-driven action. Ids outside 0–4 cover in place.
func (act *Actuator) TakeActionByID(n int) {
	if n < 0 || n >= NumActions {
		n = int(CoverInPlace)
	}
	act.TakeAction(Action(n))
}

// TakeAction applies the movement rule (if any) and then the post-action rule.
func (act *Actuator) TakeAction(a Action) {
	if a != CoverInPlace {
		dx, dy := a.Delta()
		act.moveTo(act.agent.X+dx, act.agent.Y+dy)
	}
	act.coverCurrentCell()
	act.lastAction = a
}

// moveTo relocates the agent when the target is on the grid, not an obstacle and
// not held by another agent. A rejected move leaves the agent in place.
func (act *Actuator) moveTo(x, y int) {
	c, ok := act.world.Cell(x, y)
	if !ok || c.IsObstacle() {
		return
	}
	if _, occupied := act.world.AgentAt(x, y); occupied {
		return
	}
	act.agent.SetLocation(x, y)
}

// coverCurrentCell is the post-action rule: one cover event and one hazard draw.
func (act *Actuator) coverCurrentCell() {
	c := act.world.cells[act.agent.X][act.agent.Y]
	prior := c.CoverCount
	draw := act.rules.RNG.Float64()
	triggered := draw < c.HazardProb && act.rules.Breakable

	act.lastHazard = triggered
	act.lastReward = 0
	if act.rules.Reward != nil {
		act.lastReward = act.rules.Reward(prior, triggered)
	}
	if act.rules.Recorder != nil {
		act.rules.Recorder.UpdateCellCovered(act.agent)
	}
	c.CoverCount++
	if triggered {
		act.agent.Broken = true
	}
}
