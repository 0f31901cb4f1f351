package policy

import (
	"strings"

	"github.com/adversarial-coverage/adsim/sim"
)

// StatePreprocessor featurizes raw sensor output into a discrete state key
// for tabular policies.
type StatePreprocessor interface {
	State(s *sim.Sensor) string
}

// hazardBuckets is the number of levels a hazard probability is quantized to.
const hazardBuckets = 4

// NeighborhoodPreprocessor encodes the agent's own cell and its four
// orthogonal neighbours. Each cell becomes two characters: what it is
// ('#' blocked or off grid, 'a' held by another agent, 'c' covered,
// 'u' uncovered) and its quantized hazard level.
type NeighborhoodPreprocessor struct{}

func (NeighborhoodPreprocessor) State(s *sim.Sensor) string {
	var sb strings.Builder
	sb.Grow(2 * sim.NumActions)
	writeNeighborhood(&sb, s)
	return sb.String()
}

func writeNeighborhood(sb *strings.Builder, s *sim.Sensor) {
	x, y := s.Location()
	for a := sim.MoveRight; a <= sim.CoverInPlace; a++ {
		dx, dy := a.Delta()
		c, ok := s.Cell(x+dx, y+dy)
		switch {
		case !ok || c.IsObstacle():
			sb.WriteString("#0")
			continue
		case a != sim.CoverInPlace && s.IsOccupied(c.X, c.Y):
			sb.WriteByte('a')
		case c.IsCovered():
			sb.WriteByte('c')
		default:
			sb.WriteByte('u')
		}
		sb.WriteByte(hazardLevel(c.HazardProb))
	}
}

func hazardLevel(p float64) byte {
	level := int(p * hazardBuckets)
	level = min(max(level, 0), hazardBuckets-1)
	return byte('0' + level)
}

// GoalSource reports the current goal cell. *sim.PathplanScenario satisfies it.
type GoalSource interface {
	Goal() (int, int)
}

// GoalPreprocessor prefixes the neighbourhood encoding with the direction of
// the goal: the sign of the goal offset on each axis.
type GoalPreprocessor struct {
	Goal GoalSource
}

func (p GoalPreprocessor) State(s *sim.Sensor) string {
	var sb strings.Builder
	sb.Grow(2*sim.NumActions + 3)
	x, y := s.Location()
	gx, gy := p.Goal.Goal()
	sb.WriteByte(signByte(gx - x))
	sb.WriteByte(signByte(gy - y))
	sb.WriteByte('|')
	writeNeighborhood(&sb, s)
	return sb.String()
}

func signByte(d int) byte {
	switch {
	case d < 0:
		return '-'
	case d > 0:
		return '+'
	default:
		return '0'
	}
}

// preprocessorFor picks the goal-aware encoding when the scenario has a goal.
func preprocessorFor(scenario sim.Scenario) StatePreprocessor {
	if g, ok := scenario.(GoalSource); ok {
		return GoalPreprocessor{Goal: g}
	}
	return NeighborhoodPreprocessor{}
}
