package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every policy decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// MemoryKey is the key a decision trace is shared under in a simulation's
// policy memory.
const MemoryKey = "trace"

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxDecisions bounds the retained decision records; 0 keeps all.
	// Older records are dropped first; counts in Summarize cover retained records only.
	MaxDecisions int
}

// SimulationTrace collects decision records across runs.
type SimulationTrace struct {
	Config    TraceConfig
	Decisions []DecisionRecord
	Runs      []RunRecord

	runStart int // index into Decisions of the first record of the current run
	dropped  int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Decisions: make([]DecisionRecord, 0),
		Runs:      make([]RunRecord, 0),
	}
}

// Enabled reports whether decisions are being recorded.
func (st *SimulationTrace) Enabled() bool {
	return st.Config.Level == TraceLevelDecisions
}

// RecordDecision appends a decision record.
func (st *SimulationTrace) RecordDecision(record DecisionRecord) {
	if !st.Enabled() {
		return
	}
	st.Decisions = append(st.Decisions, record)
	if limit := st.Config.MaxDecisions; limit > 0 && len(st.Decisions) > limit {
		n := len(st.Decisions) - limit
		st.Decisions = append(st.Decisions[:0], st.Decisions[n:]...)
		st.dropped += n
		st.runStart = max(0, st.runStart-n)
	}
}

// EndRun closes the current run's slice of decisions.
func (st *SimulationTrace) EndRun(runID string, steps int) {
	st.Runs = append(st.Runs, RunRecord{
		RunID:     runID,
		Steps:     steps,
		Decisions: len(st.Decisions) - st.runStart,
	})
	st.runStart = len(st.Decisions)
}

// Dropped returns how many decision records were discarded by MaxDecisions.
func (st *SimulationTrace) Dropped() int { return st.dropped }
