package sim

import "math"

// HazardModel spreads and decays the hazard field once per tick.
//
// All deltas are accumulated into a full-grid buffer before any cell changes,
// so the result does not depend on traversal order.
type HazardModel struct {
	SpreadFactor float64
	DecayFactor  float64
	Cap          float64

	deltas [][]float64
}

// NewHazardModel creates a model with the given factors and hazard cap.
func NewHazardModel(spreadFactor, decayFactor, hazardCap float64) *HazardModel {
	return &HazardModel{SpreadFactor: spreadFactor, DecayFactor: decayFactor, Cap: hazardCap}
}

func (h *HazardModel) ensureBuffer(width, height int) {
	if len(h.deltas) == width && (width == 0 || len(h.deltas[0]) == height) {
		for x := range h.deltas {
			clear(h.deltas[x])
		}
		return
	}
	h.deltas = make([][]float64, width)
	for x := range h.deltas {
		h.deltas[x] = make([]float64, height)
	}
}

// Update applies one diffusion step to w.
//
// Each cell sends p×spreadability×spreadFactor to every orthogonal neighbour.
// While the cell has positive fuel it burns min(fuel, p×decayFactor) of it and
// adds the same amount to itself; with no fuel left it loses p×decayFactor.
// New values are clamped to [0, Cap].
func (h *HazardModel) Update(w *GridWorld) {
	width, height := w.width, w.height
	h.ensureBuffer(width, height)

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			c := w.cells[x][y]
			p := c.HazardProb
			spread := p * c.Spreadability * h.SpreadFactor
			decay := p * h.DecayFactor

			if c.HazardFuel > 0 {
				burned := min(c.HazardFuel, decay)
				c.HazardFuel -= burned
				h.deltas[x][y] += burned
			} else {
				h.deltas[x][y] -= decay
			}

			if x+1 < width {
				h.deltas[x+1][y] += spread
			}
			if x > 0 {
				h.deltas[x-1][y] += spread
			}
			if y+1 < height {
				h.deltas[x][y+1] += spread
			}
			if y > 0 {
				h.deltas[x][y-1] += spread
			}
		}
	}

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			c := w.cells[x][y]
			c.HazardProb = clampHazard(c.HazardProb+h.deltas[x][y], h.Cap)
		}
	}
}

// clampHazard maps v into [0, hazardCap]. NaN becomes 0.
func clampHazard(v, hazardCap float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > hazardCap {
		return hazardCap
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
