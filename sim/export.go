package sim

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportHazard renders every cell's hazard probability as whitespace-separated
// values in x-major order (x outer, y inner).
func (w *GridWorld) ExportHazard() string {
	var sb strings.Builder
	w.ForEachCell(func(c *Cell) {
		sb.WriteString(strconv.FormatFloat(c.HazardProb, 'g', -1, 64))
		sb.WriteByte(' ')
	})
	return sb.String()
}

// ImportHazard reads values written by ExportHazard. The value count must match
// the grid; on any error the grid is left unchanged. Values are clamped to
// [0, hazardCap].
func (w *GridWorld) ImportHazard(data string, hazardCap float64) error {
	fields := strings.Fields(data)
	if len(fields) != w.width*w.height {
		return fmt.Errorf("hazard import: got %d values for a %dx%d grid: %w",
			len(fields), w.width, w.height, ErrInvalidSetting)
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || !isFinite(v) {
			return fmt.Errorf("hazard import: value %d %q: %w", i, f, ErrInvalidSetting)
		}
		values[i] = v
	}
	i := 0
	w.ForEachCell(func(c *Cell) {
		c.HazardProb = clampHazard(values[i], hazardCap)
		i++
	})
	return nil
}

// PrintGrid writes the diagnostic dump: one line per row, each cell a 4-wide
// token ("OBS", "FREE" for zero hazard, else the hazard to two decimals)
// followed by '*' when an agent stands there, else Y/N for covered.
func (w *GridWorld) PrintGrid(out io.Writer) error {
	var sb strings.Builder
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			c := w.cells[x][y]
			switch {
			case c.IsObstacle():
				fmt.Fprintf(&sb, "%4s", "OBS")
			case c.HazardProb == 0:
				fmt.Fprintf(&sb, "%4s", "FREE")
			default:
				fmt.Fprintf(&sb, "%4.2f", c.HazardProb)
			}
			switch _, occupied := w.AgentAt(x, y); {
			case occupied:
				sb.WriteString("* ")
			case c.IsCovered():
				sb.WriteString("Y ")
			default:
				sb.WriteString("N ")
			}
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(out, sb.String())
	return err
}
