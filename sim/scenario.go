package sim

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

const (
	ScenarioCoverage = "coverage"
	ScenarioPathplan = "pathplan"
)

// Extra metric names reported by the pathplan scenario.
const (
	ExtraMinGoalDistance = "min_goal_distance"
	ExtraGoalReached     = "goal_reached"
)

// Scenario composes the GridWorld primitives into a terminal-state predicate
// and supplies the reward function and any per-run extra metrics.
type Scenario interface {
	Name() string
	Reward() RewardFunc
	// Prepare runs after the hazard field is generated and before agents are placed.
	Prepare(w *GridWorld, rng *rand.Rand)
	IsTerminal(w *GridWorld) bool
	// RunExtras returns scenario metrics for a finished run; nil when there are none.
	RunExtras(w *GridWorld) map[string]float64
	// Commands returns scenario-specific operations.
	Commands() []Command
}

// IsValidScenario reports whether name selects a known scenario.
func IsValidScenario(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ScenarioCoverage, ScenarioPathplan:
		return true
	default:
		return false
	}
}

// NewScenario builds the scenario named in cfg. Empty selects coverage.
func NewScenario(cfg *Config) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Scenario)) {
	case "", ScenarioCoverage:
		return &CoverageScenario{MaxSteps: cfg.Run.MaxSteps}, nil
	case ScenarioPathplan:
		return &PathplanScenario{MaxSteps: cfg.Run.MaxSteps, ClearGoalNeighbors: cfg.ClearGoalNeighbors}, nil
	default:
		return nil, fmt.Errorf("scenario %q: %w", cfg.Scenario, ErrInvalidSetting)
	}
}

// stepCapReached reports whether a positive step cap has been hit.
func stepCapReached(w *GridWorld, maxSteps int) bool {
	return maxSteps > 0 && w.StepCount() >= maxSteps
}

// CoverageScenario ends a run when every agent is broken, every Free cell is
// covered, or the step cap is reached.
type CoverageScenario struct {
	MaxSteps int
}

func (s *CoverageScenario) Name() string                            { return ScenarioCoverage }
func (s *CoverageScenario) Reward() RewardFunc                      { return CoverageReward }
func (s *CoverageScenario) RunExtras(*GridWorld) map[string]float64 { return nil }
func (s *CoverageScenario) Commands() []Command                     { return nil }

func (s *CoverageScenario) Prepare(*GridWorld, *rand.Rand) {}

func (s *CoverageScenario) IsTerminal(w *GridWorld) bool {
	return w.AllBroken() || w.IsFullyCovered() || stepCapReached(w, s.MaxSteps)
}

// PathplanScenario places a goal cell per run. A run ends when every agent is
// broken, an agent stands on the goal, or the step cap is reached.
type PathplanScenario struct {
	MaxSteps           int
	ClearGoalNeighbors bool

	goalX, goalY int
	world        *GridWorld
}

func (s *PathplanScenario) Name() string       { return ScenarioPathplan }
func (s *PathplanScenario) Reward() RewardFunc { return PathplanReward }

// Goal returns the current goal cell.
func (s *PathplanScenario) Goal() (int, int) { return s.goalX, s.goalY }

// SetGoal moves the goal. The cell must be on the grid.
func (s *PathplanScenario) SetGoal(x, y int) error {
	if s.world != nil && !s.world.IsOnGrid(x, y) {
		return fmt.Errorf("goal (%d, %d): %w", x, y, ErrOffGrid)
	}
	s.goalX, s.goalY = x, y
	return nil
}

// Prepare samples a goal and, when configured, frees it and its neighbours.
func (s *PathplanScenario) Prepare(w *GridWorld, rng *rand.Rand) {
	s.world = w
	s.goalX = rng.Intn(w.Width())
	s.goalY = rng.Intn(w.Height())
	if s.ClearGoalNeighbors {
		w.clearAdjacentCells(s.goalX, s.goalY)
		w.cells[s.goalX][s.goalY].Type = Free
	}
}

func (s *PathplanScenario) IsTerminal(w *GridWorld) bool {
	return w.AllBroken() || s.goalOccupied(w) || stepCapReached(w, s.MaxSteps)
}

func (s *PathplanScenario) goalOccupied(w *GridWorld) bool {
	_, ok := w.AgentAt(s.goalX, s.goalY)
	return ok
}

// MinGoalDistance is the smallest Manhattan distance from any agent to the goal.
func (s *PathplanScenario) MinGoalDistance(w *GridWorld) int {
	best := math.MaxInt
	for _, a := range w.Agents() {
		d := abs(a.X-s.goalX) + abs(a.Y-s.goalY)
		best = min(best, d)
	}
	return best
}

func (s *PathplanScenario) RunExtras(w *GridWorld) map[string]float64 {
	if len(w.Agents()) == 0 {
		return nil
	}
	d := s.MinGoalDistance(w)
	reached := 0.0
	if d == 0 {
		reached = 1
	}
	return map[string]float64{
		ExtraMinGoalDistance: float64(d),
		ExtraGoalReached:     reached,
	}
}

func (s *PathplanScenario) Commands() []Command {
	cmd := Command{Name: ":set_goal_pos", Usage: "<x> <y>", Help: "move the pathplan goal"}
	cmd.Run = func(_ context.Context, _ io.Writer, args []string) error {
		if len(args) < 2 {
			return cmd.UsageError()
		}
		x, errX := strconv.Atoi(args[0])
		y, errY := strconv.Atoi(args[1])
		if errX != nil || errY != nil {
			return cmd.UsageError()
		}
		return s.SetGoal(x, y)
	}
	return []Command{cmd}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
