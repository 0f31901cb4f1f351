package sim

// CellType distinguishes traversable cells from obstacles.
type CellType int

const (
	Free CellType = iota
	Obstacle
)

func (t CellType) String() string {
	switch t {
	case Free:
		return "FREE"
	case Obstacle:
		return "OBSTACLE"
	default:
		return "UNKNOWN"
	}
}

// Cell is the state of one grid position.
//
// HazardProb is the per-tick chance that an agent covering this cell breaks; the
// hazard model keeps it within [0, cap]. HazardFuel is the reservoir that lets the
// cell replenish its own hazard before pure decay takes over. CoverCount only grows
// within a run.
type Cell struct {
	X, Y          int
	Type          CellType
	HazardProb    float64
	HazardFuel    float64
	Spreadability float64
	CoverCount    int
	Cost          float64
}

func newCell(x, y int) *Cell {
	return &Cell{X: x, Y: y, Type: Free}
}

// IsObstacle reports whether agents are barred from entering the cell.
func (c *Cell) IsObstacle() bool {
	return c.Type == Obstacle
}

// IsCovered reports whether the cell has been covered at least once this run.
func (c *Cell) IsCovered() bool {
	return c.CoverCount > 0
}
