package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioCWorld is a 3x1 grid with one obstacle and one of two free cells covered.
func scenarioCWorld(broken bool) *GridWorld {
	w := NewGridWorld(3, 1)
	mustCell(w, 1, 0).Type = Obstacle
	mustCell(w, 0, 0).CoverCount = 2
	a := NewAgent(0, 0, 0)
	a.Broken = broken
	w.AddAgent(a)
	w.AddAgent(NewAgent(1, 2, 0))
	return w
}

func TestRunStatistics_Snapshot(t *testing.T) {
	// GIVEN a world with two agents, one broken, and half the free cells covered
	s := NewRunStatistics(5)
	s.BeginRun(scenarioCWorld(true), "run-1")
	s.RecordTick()
	s.RecordTick()
	s.UpdateCellCovered(nil)

	// WHEN the current run is summarized
	r := s.Snapshot()

	// THEN counts exclude the obstacle
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 1, r.Run)
	assert.Equal(t, 2, r.Steps)
	assert.Equal(t, 1, r.CoverEvents)
	assert.Equal(t, 3, r.TotalCells)
	assert.Equal(t, 2, r.FreeCells)
	assert.Equal(t, 1, r.CoveredCells)
	assert.Equal(t, 0.5, r.Coverage)
	assert.Equal(t, 1.0, r.AvgCoversPerFreeCell)
	assert.Equal(t, 2, r.MaxCoverCount)
	assert.Equal(t, 0, r.MinCoverCount)
	assert.Equal(t, map[int]int{0: 1, 2: 1}, r.CoverHistogram)
	assert.Equal(t, 2, r.Agents)
	assert.Equal(t, 1, r.Broken)
	assert.Equal(t, 0.5, r.Survivability)
	assert.Equal(t, [][]int{{2}, {0}, {0}}, r.CoverCounts)
}

// Scenario C: two runs with batch size 2 flush one batch and reset the window.
func TestRunStatistics_BatchFlush(t *testing.T) {
	s := NewRunStatistics(2)

	// GIVEN a first run where one of two agents broke after 4 steps
	s.BeginRun(scenarioCWorld(true), "a")
	for i := 0; i < 4; i++ {
		s.RecordTick()
	}
	r1, b := s.FinishRun(nil)
	assert.Nil(t, b)
	assert.Equal(t, 0.5, r1.Survivability)
	assert.Equal(t, 1, s.RunsInBatch())

	// WHEN a second run with no breakage and 6 steps finishes
	s.BeginRun(scenarioCWorld(false), "b")
	for i := 0; i < 6; i++ {
		s.RecordTick()
	}
	r2, b := s.FinishRun(map[string]float64{"x": 3})

	// THEN the batch is reported with sample moments and the window resets
	require.NotNil(t, b)
	assert.Equal(t, 2, r2.Run)
	assert.Equal(t, 1, b.Batch)
	assert.Equal(t, 2, b.Runs)
	assert.Equal(t, 5.0, b.Steps.Mean)
	assert.InDelta(t, 1.41421356, b.Steps.StdDev, 1e-6)
	assert.Equal(t, 0.75, b.Survivability.Mean)
	assert.InDelta(t, 0.35355339, b.Survivability.StdDev, 1e-6)
	assert.Equal(t, 0.5, b.Coverage.Mean)
	assert.Equal(t, []string{"x"}, b.ExtraNames())
	assert.Equal(t, 1, b.Extras["x"].Count)

	assert.Equal(t, 0, s.RunsInBatch())
	assert.Equal(t, 1, s.BatchesCompleted())
	assert.Equal(t, 2, s.RunsCompleted())
	assert.Equal(t, 0, s.BatchProgress().Steps.Count)
	assert.Empty(t, s.BatchProgress().Extras)
}

func TestRunStatistics_BeginRunResetsCounters(t *testing.T) {
	s := NewRunStatistics(3)
	s.BeginRun(scenarioCWorld(false), "a")
	s.RecordTick()
	s.UpdateCellCovered(nil)
	s.BeginRun(scenarioCWorld(false), "b")
	assert.Equal(t, 0, s.Snapshot().Steps)
	assert.Equal(t, 0, s.CoverEvents())
}

func TestRunStatistics_ShrinkingBatchSizeFlushesNextRun(t *testing.T) {
	s := NewRunStatistics(5)
	for i := 0; i < 3; i++ {
		s.BeginRun(scenarioCWorld(false), "r")
		_, b := s.FinishRun(nil)
		require.Nil(t, b)
	}
	s.SetBatchSize(2)
	s.BeginRun(scenarioCWorld(false), "r")
	_, b := s.FinishRun(nil)
	require.NotNil(t, b)
	assert.Equal(t, 4, b.Runs)
}

func TestRunStatistics_SnapshotWithoutWorld(t *testing.T) {
	r := NewRunStatistics(1).Snapshot()
	assert.Equal(t, 0, r.TotalCells)
	assert.Equal(t, 0.0, r.Coverage)
}
