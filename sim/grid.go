package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrOffGrid is returned when a coordinate lies outside the grid.
	ErrOffGrid = errors.New("coordinate is off the grid")
	// ErrNoAgent is returned when no agent has the requested id.
	ErrNoAgent = errors.New("no agent with that id")
	// ErrNoFreeCell is returned when placement cannot find a free, unoccupied cell.
	ErrNoFreeCell = errors.New("no free cell available for placement")
)

// PlacementOptions controls how GridWorld.Init positions agents.
type PlacementOptions struct {
	Randomize     bool // sample a random free cell per agent
	ClearAdjacent bool // force the four orthogonal neighbours of the chosen cell to Free
}

// SizeOptions controls how Regenerate re-samples grid dimensions.
type SizeOptions struct {
	Variable    bool
	ForceSquare bool
	MinWidth    int
	MaxWidth    int
	MinHeight   int
	MaxHeight   int
}

// GridWorld is the 2-D array of cells plus the ordered list of agents.
// Cells are indexed [x][y]. Agent order is the activation order and decides
// same-tick occupancy conflicts (first mover wins).
type GridWorld struct {
	width, height int
	cells         [][]*Cell
	agents        []*Agent
	stepCount     int
}

// NewGridWorld creates a width×height world of Free cells with no agents.
func NewGridWorld(width, height int) *GridWorld {
	w := &GridWorld{width: width, height: height}
	w.cells = allocCells(width, height, nil, 0, 0)
	return w
}

// allocCells builds a width×height array, carrying over cells from old that
// fall inside both the old and new bounds.
func allocCells(width, height int, old [][]*Cell, oldWidth, oldHeight int) [][]*Cell {
	cells := make([][]*Cell, width)
	for x := 0; x < width; x++ {
		cells[x] = make([]*Cell, height)
		for y := 0; y < height; y++ {
			if x < oldWidth && y < oldHeight {
				cells[x][y] = old[x][y]
			} else {
				cells[x][y] = newCell(x, y)
			}
		}
	}
	return cells
}

func (w *GridWorld) Width() int  { return w.width }
func (w *GridWorld) Height() int { return w.height }

// StepCount returns the number of ticks executed since the last Init.
func (w *GridWorld) StepCount() int { return w.stepCount }

// IsOnGrid reports whether (x, y) lies within the grid.
func (w *GridWorld) IsOnGrid(x, y int) bool {
	return 0 <= x && x < w.width && 0 <= y && y < w.height
}

// Cell returns the cell at (x, y). The boolean is false for off-grid
// coordinates, in which case the cell is nil.
func (w *GridWorld) Cell(x, y int) (*Cell, bool) {
	if !w.IsOnGrid(x, y) {
		return nil, false
	}
	return w.cells[x][y], true
}

// ForEachCell visits every cell in x-major order (x outer, y inner).
// This is also the hazard export order.
func (w *GridWorld) ForEachCell(fn func(c *Cell)) {
	for x := 0; x < w.width; x++ {
		for y := 0; y < w.height; y++ {
			fn(w.cells[x][y])
		}
	}
}

// AddAgent appends an agent to the activation order.
func (w *GridWorld) AddAgent(a *Agent) {
	w.agents = append(w.agents, a)
}

// Agents returns the agents in activation order. The slice is owned by the world.
func (w *GridWorld) Agents() []*Agent {
	return w.agents
}

// AgentByID returns the agent with the given id.
func (w *GridWorld) AgentByID(id int) (*Agent, bool) {
	for _, a := range w.agents {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// AgentAt returns the first agent, in activation order, located at (x, y).
// Broken agents still occupy their cell.
func (w *GridWorld) AgentAt(x, y int) (*Agent, bool) {
	for _, a := range w.agents {
		if a.X == x && a.Y == y {
			return a, true
		}
	}
	return nil, false
}

// SetAgentLocation moves an agent directly, bypassing the movement rules.
// The target must be on the grid and not an obstacle.
func (w *GridWorld) SetAgentLocation(id, x, y int) error {
	a, ok := w.AgentByID(id)
	if !ok {
		return fmt.Errorf("agent %d: %w", id, ErrNoAgent)
	}
	c, ok := w.Cell(x, y)
	if !ok {
		return fmt.Errorf("(%d, %d): %w", x, y, ErrOffGrid)
	}
	if c.IsObstacle() {
		return fmt.Errorf("(%d, %d) is an obstacle", x, y)
	}
	a.SetLocation(x, y)
	return nil
}

// Init places every agent and then calls each agent's Policy.Init.
// Agents are marked unbroken and the step counter is reset.
func (w *GridWorld) Init(opts PlacementOptions, rng *rand.Rand) error {
	w.stepCount = 0
	for i, a := range w.agents {
		a.Broken = false
		if opts.Randomize {
			if err := w.placeRandomly(a, w.agents[:i], rng); err != nil {
				return fmt.Errorf("placing agent %d: %w", a.ID, err)
			}
			if opts.ClearAdjacent {
				w.clearAdjacentCells(a.X, a.Y)
			}
		} else if !w.IsOnGrid(a.X, a.Y) {
			return fmt.Errorf("agent %d at (%d, %d): %w", a.ID, a.X, a.Y, ErrOffGrid)
		}
		w.cells[a.X][a.Y].Type = Free
	}
	for _, a := range w.agents {
		if a.Policy == nil {
			return fmt.Errorf("agent %d has no policy", a.ID)
		}
		if err := a.Policy.Init(); err != nil {
			return fmt.Errorf("initializing policy of agent %d: %w", a.ID, err)
		}
	}
	return nil
}

// placeRandomly retries uniform coordinates until it finds a Free cell not held
// by an already placed agent.
func (w *GridWorld) placeRandomly(a *Agent, placed []*Agent, rng *rand.Rand) error {
	taken := func(x, y int) bool {
		for _, p := range placed {
			if p.X == x && p.Y == y {
				return true
			}
		}
		return false
	}
	available := 0
	w.ForEachCell(func(c *Cell) {
		if !c.IsObstacle() && !taken(c.X, c.Y) {
			available++
		}
	})
	if available == 0 {
		return ErrNoFreeCell
	}
	for {
		x := rng.Intn(w.width)
		y := rng.Intn(w.height)
		if !w.cells[x][y].IsObstacle() && !taken(x, y) {
			a.SetLocation(x, y)
			return nil
		}
	}
}

func (w *GridWorld) clearAdjacentCells(x, y int) {
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if c, ok := w.Cell(x+d[0], y+d[1]); ok {
			c.Type = Free
		}
	}
}

// Step runs one activation pass: every unbroken agent's policy steps once, in
// agent order. The first policy error aborts the pass and is returned.
func (w *GridWorld) Step(ctx context.Context) error {
	w.stepCount++
	for _, a := range w.agents {
		if a.Broken {
			continue
		}
		if err := a.Policy.Step(ctx); err != nil {
			return fmt.Errorf("agent %d step: %w", a.ID, err)
		}
	}
	return nil
}

// Resize reallocates the cell array. Cells inside the overlap of the old and
// new bounds are kept unchanged; new cells are Free with zeroed state.
func (w *GridWorld) Resize(width, height int) {
	w.cells = allocCells(width, height, w.cells, w.width, w.height)
	w.width = width
	w.height = height
}

// Regenerate optionally re-samples the grid size, then repopulates every
// cell's type and hazard fields from gen.
func (w *GridWorld) Regenerate(size SizeOptions, gen *HazardGenerator, hazardCap float64, rng *rand.Rand) {
	if size.Variable {
		width := int(rng.Float64()*float64(size.MaxWidth-size.MinWidth)) + size.MinWidth
		height := int(rng.Float64()*float64(size.MaxHeight-size.MinHeight)) + size.MinHeight
		if size.ForceSquare {
			height = width
		}
		w.Resize(width, height)
	}
	w.ForEachCell(func(c *Cell) {
		gen.Apply(c, hazardCap, rng)
	})
}

// ResetCoverage zeroes every cell's cover count.
func (w *GridWorld) ResetCoverage() {
	w.ForEachCell(func(c *Cell) { c.CoverCount = 0 })
}

// AllBroken reports whether every agent is broken. A world without agents
// counts as all broken.
func (w *GridWorld) AllBroken() bool {
	for _, a := range w.agents {
		if !a.Broken {
			return false
		}
	}
	return true
}

// IsFullyCovered reports whether every Free cell has been covered at least once.
func (w *GridWorld) IsFullyCovered() bool {
	for x := 0; x < w.width; x++ {
		for y := 0; y < w.height; y++ {
			c := w.cells[x][y]
			if !c.IsObstacle() && c.CoverCount < 1 {
				return false
			}
		}
	}
	return true
}

// FreeCellCount returns the number of non-obstacle cells.
func (w *GridWorld) FreeCellCount() int {
	n := 0
	w.ForEachCell(func(c *Cell) {
		if !c.IsObstacle() {
			n++
		}
	})
	return n
}

// CoveredFreeCellCount returns the number of Free cells covered at least once.
func (w *GridWorld) CoveredFreeCellCount() int {
	n := 0
	w.ForEachCell(func(c *Cell) {
		if !c.IsObstacle() && c.IsCovered() {
			n++
		}
	})
	return n
}
