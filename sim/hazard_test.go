package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHazardModel_SpreadToNeighbours(t *testing.T) {
	// GIVEN a 3x3 grid with hazard only at the centre, no fuel
	w := NewGridWorld(3, 3)
	w.ForEachCell(func(c *Cell) { c.Spreadability = 1 })
	mustCell(w, 1, 1).HazardProb = 0.4
	h := NewHazardModel(0.25, 0.5, 1.0)

	// WHEN one update runs
	h.Update(w)

	// THEN each neighbour receives p*spread*factor and the centre decays
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		assert.InDelta(t, 0.1, mustCell(w, 1+d[0], 1+d[1]).HazardProb, 1e-12, "neighbour %v", d)
	}
	assert.InDelta(t, 0.2, mustCell(w, 1, 1).HazardProb, 1e-12)
	assert.Equal(t, 0.0, mustCell(w, 0, 0).HazardProb, "diagonals receive nothing")
}

func TestHazardModel_FuelReplenishesUntilExhausted(t *testing.T) {
	// GIVEN an isolated cell (no spread) with a small fuel reservoir
	w := NewGridWorld(1, 1)
	c := mustCell(w, 0, 0)
	c.HazardProb = 0.5
	c.HazardFuel = 0.08
	h := NewHazardModel(0, 0.1, 1.0)

	// WHEN the first update burns min(fuel, p*decay) = 0.05
	h.Update(w)
	assert.InDelta(t, 0.55, c.HazardProb, 1e-12)
	assert.InDelta(t, 0.03, c.HazardFuel, 1e-12)

	// AND the second burns only the remaining 0.03
	h.Update(w)
	assert.InDelta(t, 0.58, c.HazardProb, 1e-12)
	assert.InDelta(t, 0.0, c.HazardFuel, 1e-12)

	// THEN with no fuel left the cell decays by p*decay
	h.Update(w)
	assert.InDelta(t, 0.58-0.058, c.HazardProb, 1e-12)
}

func TestHazardModel_ZeroFuelDecays(t *testing.T) {
	w := NewGridWorld(1, 1)
	c := mustCell(w, 0, 0)
	c.HazardProb = 0.2
	c.HazardFuel = 0
	NewHazardModel(0, 0.5, 1).Update(w)
	assert.InDelta(t, 0.1, c.HazardProb, 1e-12)
}

func TestHazardModel_OrderIndependent(t *testing.T) {
	// GIVEN a grid and its transpose with identical hazard layouts
	rng := rand.New(rand.NewSource(9))
	w := NewGridWorld(4, 6)
	tr := NewGridWorld(6, 4)
	w.ForEachCell(func(c *Cell) {
		c.HazardProb = rng.Float64()
		c.HazardFuel = rng.Float64() * 0.1
		c.Spreadability = rng.Float64()
		t2 := mustCell(tr, c.Y, c.X)
		t2.HazardProb, t2.HazardFuel, t2.Spreadability = c.HazardProb, c.HazardFuel, c.Spreadability
	})

	// WHEN both are updated (traversal order differs relative to the layout)
	NewHazardModel(0.2, 0.1, 1).Update(w)
	NewHazardModel(0.2, 0.1, 1).Update(tr)

	// THEN results agree cell by cell
	w.ForEachCell(func(c *Cell) {
		assert.InDelta(t, c.HazardProb, mustCell(tr, c.Y, c.X).HazardProb, 1e-12)
	})
}

func TestHazardModel_StaysWithinCap(t *testing.T) {
	caps := []float64{0.25, 0.5, 1.0}
	factors := [][2]float64{{0.1, 0.1}, {0.9, 0.01}, {2.0, 3.0}, {0.5, 0}}
	for _, hazardCap := range caps {
		for _, f := range factors {
			rng := rand.New(rand.NewSource(int64(hazardCap * 100)))
			w := NewGridWorld(6, 5)
			w.ForEachCell(func(c *Cell) {
				c.HazardProb = rng.Float64() * hazardCap
				c.HazardFuel = rng.Float64()
				c.Spreadability = rng.Float64() * 2
			})
			h := NewHazardModel(f[0], f[1], hazardCap)
			for tick := 0; tick < 25; tick++ {
				h.Update(w)
				w.ForEachCell(func(c *Cell) {
					if c.HazardProb < 0 || c.HazardProb > hazardCap {
						t.Fatalf("cap %g factors %v tick %d: hazard %g out of range at (%d, %d)",
							hazardCap, f, tick, c.HazardProb, c.X, c.Y)
					}
				})
			}
		}
	}
}

func TestHazardModel_NonFiniteNeverEscapesRange(t *testing.T) {
	// GIVEN a NaN cell among zero-hazard cells and an infinite spread factor
	w := NewGridWorld(4, 4)
	mustCell(w, 1, 1).HazardProb = math.NaN()
	mustCell(w, 2, 2).HazardProb = 0.5
	w.ForEachCell(func(c *Cell) { c.Spreadability = 1 })
	h := NewHazardModel(math.Inf(1), 0.1, 0.8)

	// WHEN the model updates
	for tick := 0; tick < 3; tick++ {
		h.Update(w)

		// THEN every cell stays a number within [0, cap]
		w.ForEachCell(func(c *Cell) {
			assert.False(t, math.IsNaN(c.HazardProb), "(%d, %d) is NaN", c.X, c.Y)
			assert.GreaterOrEqual(t, c.HazardProb, 0.0)
			assert.LessOrEqual(t, c.HazardProb, 0.8)
		})
	}
}

func TestClampHazard(t *testing.T) {
	assert.Equal(t, 0.0, clampHazard(math.NaN(), 1))
	assert.Equal(t, 0.0, clampHazard(math.Inf(-1), 1))
	assert.Equal(t, 0.6, clampHazard(math.Inf(1), 0.6))
	assert.Equal(t, 0.3, clampHazard(0.3, 0.6))
}

func TestHazardModel_BufferFollowsResize(t *testing.T) {
	w := NewGridWorld(2, 2)
	h := NewHazardModel(0.1, 0.1, 1)
	h.Update(w)
	w.Resize(5, 3)
	mustCell(w, 4, 2).HazardProb = 0.5
	mustCell(w, 4, 2).Spreadability = 1
	assert.NotPanics(t, func() { h.Update(w) })
	assert.Greater(t, mustCell(w, 3, 2).HazardProb, 0.0)
}
