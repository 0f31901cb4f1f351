package driver

import (
	"fmt"
	"io"

	"github.com/adversarial-coverage/adsim/sim"
)

// Display renders the world. The driver calls Refresh only between ticks,
// from the loop goroutine, and Dispose once when it is killed or the display
// is replaced.
type Display interface {
	Refresh(s *sim.Simulation) error
	Dispose()
}

type nopDisplay struct{}

func (nopDisplay) Refresh(*sim.Simulation) error { return nil }
func (nopDisplay) Dispose()                      {}

// TextDisplay prints the diagnostic grid dump after a step header.
type TextDisplay struct {
	Out io.Writer
}

func NewTextDisplay(out io.Writer) *TextDisplay {
	return &TextDisplay{Out: out}
}

func (d *TextDisplay) Refresh(s *sim.Simulation) error {
	w := s.World()
	if _, err := fmt.Fprintf(d.Out, "--- run %s step %d ---\n", shortID(s.RunID()), w.StepCount()); err != nil {
		return err
	}
	return w.PrintGrid(d.Out)
}

func (d *TextDisplay) Dispose() {}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
