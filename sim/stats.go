package sim

import "sort"

// RunSummary is the report for one finished (or in-progress) run.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Run         int    `json:"run"` // 1-based index since the simulation started
	BatchRun    int    `json:"batch_run"`
	Steps       int    `json:"steps"`
	CoverEvents int    `json:"cover_events"`

	TotalCells   int     `json:"total_cells"`
	FreeCells    int     `json:"free_cells"`
	CoveredCells int     `json:"covered_cells"`
	Coverage     float64 `json:"coverage"` // covered free cells / free cells

	Agents        int     `json:"agents"`
	Broken        int     `json:"broken"`
	Surviving     int     `json:"surviving"`
	Survivability float64 `json:"survivability"` // surviving / agents

	AvgCoversPerFreeCell float64     `json:"avg_covers_per_free_cell"`
	MaxCoverCount        int         `json:"max_cover_count"`
	MinCoverCount        int         `json:"min_cover_count"`
	CoverHistogram       map[int]int `json:"cover_histogram"` // cover count -> free cells with exactly that count

	// CoverCounts is the per-cell cover count snapshot, indexed [x][y].
	CoverCounts [][]int            `json:"cover_counts,omitempty"`
	Extras      map[string]float64 `json:"extras,omitempty"`
}

// BatchSummary aggregates the runs of one completed batch.
type BatchSummary struct {
	Batch         int                `json:"batch"` // 1-based
	Runs          int                `json:"runs"`
	Steps         Moments            `json:"steps"`
	Survivability Moments            `json:"survivability"`
	Coverage      Moments            `json:"coverage"`
	Extras        map[string]Moments `json:"extras,omitempty"`
}

// ExtraNames returns the extra metric names in sorted order.
func (b *BatchSummary) ExtraNames() []string {
	return sortedKeys(b.Extras)
}

// RunStatistics aggregates per-run counters and per-batch running moments.
//
// The Actuator reports every cover event through UpdateCellCovered; the
// simulation calls BeginRun, FinishRun and ResetBatch at run boundaries.
type RunStatistics struct {
	batchSize int

	world       *GridWorld
	runID       string
	steps       int
	coverEvents int

	runs        int
	runsInBatch int
	batches     int

	batchSteps         SampledVariable
	batchSurvivability SampledVariable
	batchCoverage      SampledVariable
	batchExtras        map[string]*SampledVariable
}

// NewRunStatistics creates statistics that flush every batchSize runs.
func NewRunStatistics(batchSize int) *RunStatistics {
	return &RunStatistics{batchSize: batchSize, batchExtras: make(map[string]*SampledVariable)}
}

// SetBatchSize changes the batch size. A batch already at or past the new size
// flushes at the next FinishRun.
func (s *RunStatistics) SetBatchSize(n int) { s.batchSize = n }

func (s *RunStatistics) BatchSize() int        { return s.batchSize }
func (s *RunStatistics) RunsInBatch() int      { return s.runsInBatch }
func (s *RunStatistics) BatchesCompleted() int { return s.batches }
func (s *RunStatistics) RunsCompleted() int    { return s.runs }

// BeginRun binds the statistics to w and zeroes the per-run counters.
func (s *RunStatistics) BeginRun(w *GridWorld, runID string) {
	s.world = w
	s.runID = runID
	s.steps = 0
	s.coverEvents = 0
}

// RecordTick counts one completed tick of the current run.
func (s *RunStatistics) RecordTick() {
	s.steps++
}

// UpdateCellCovered counts one cover event.
func (s *RunStatistics) UpdateCellCovered(*Agent) {
	s.coverEvents++
}

// CoverEvents returns the number of cover events in the current run.
func (s *RunStatistics) CoverEvents() int { return s.coverEvents }

// Snapshot reports the current run without finishing it.
func (s *RunStatistics) Snapshot() RunSummary {
	r := RunSummary{
		RunID:          s.runID,
		Run:            s.runs + 1,
		BatchRun:       s.runsInBatch + 1,
		Steps:          s.steps,
		CoverEvents:    s.coverEvents,
		CoverHistogram: make(map[int]int),
	}
	w := s.world
	if w == nil {
		return r
	}
	r.TotalCells = w.Width() * w.Height()
	r.CoverCounts = make([][]int, w.Width())
	for x := range r.CoverCounts {
		r.CoverCounts[x] = make([]int, w.Height())
	}

	totalCovers := 0
	first := true
	w.ForEachCell(func(c *Cell) {
		r.CoverCounts[c.X][c.Y] = c.CoverCount
		if c.IsObstacle() {
			return
		}
		r.FreeCells++
		totalCovers += c.CoverCount
		if c.IsCovered() {
			r.CoveredCells++
		}
		r.CoverHistogram[c.CoverCount]++
		if first {
			r.MaxCoverCount, r.MinCoverCount = c.CoverCount, c.CoverCount
			first = false
		} else {
			r.MaxCoverCount = max(r.MaxCoverCount, c.CoverCount)
			r.MinCoverCount = min(r.MinCoverCount, c.CoverCount)
		}
	})
	if r.FreeCells > 0 {
		r.Coverage = float64(r.CoveredCells) / float64(r.FreeCells)
		r.AvgCoversPerFreeCell = float64(totalCovers) / float64(r.FreeCells)
	}

	r.Agents = len(w.Agents())
	for _, a := range w.Agents() {
		if a.Broken {
			r.Broken++
		}
	}
	r.Surviving = r.Agents - r.Broken
	if r.Agents > 0 {
		r.Survivability = float64(r.Surviving) / float64(r.Agents)
	}
	return r
}

// FinishRun records the current run into the batch window. When the window
// reaches the batch size the batch summary is returned and the window resets,
// so the next run starts a fresh batch.
func (s *RunStatistics) FinishRun(extras map[string]float64) (RunSummary, *BatchSummary) {
	r := s.Snapshot()
	r.Extras = extras

	s.runs++
	s.runsInBatch++
	s.batchSteps.Add(float64(r.Steps))
	s.batchSurvivability.Add(r.Survivability)
	s.batchCoverage.Add(r.Coverage)
	for name, v := range extras {
		sv, ok := s.batchExtras[name]
		if !ok {
			sv = &SampledVariable{}
			s.batchExtras[name] = sv
		}
		sv.Add(v)
	}

	if s.runsInBatch < s.batchSize {
		return r, nil
	}
	s.batches++
	b := s.BatchProgress()
	b.Batch = s.batches
	s.ResetBatch()
	return r, &b
}

// BatchProgress reports the partially filled batch window.
func (s *RunStatistics) BatchProgress() BatchSummary {
	b := BatchSummary{
		Batch:         s.batches + 1,
		Runs:          s.runsInBatch,
		Steps:         s.batchSteps.Moments(),
		Survivability: s.batchSurvivability.Moments(),
		Coverage:      s.batchCoverage.Moments(),
	}
	if len(s.batchExtras) > 0 {
		b.Extras = make(map[string]Moments, len(s.batchExtras))
		for name, sv := range s.batchExtras {
			b.Extras[name] = sv.Moments()
		}
	}
	return b
}

// ResetBatch clears the batch window.
func (s *RunStatistics) ResetBatch() {
	s.runsInBatch = 0
	s.batchSteps.Reset()
	s.batchSurvivability.Reset()
	s.batchCoverage.Reset()
	clear(s.batchExtras)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
