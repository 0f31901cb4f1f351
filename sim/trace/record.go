// Package trace provides decision-trace recording for policy comparison.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// DecisionRecord captures a single action taken by an agent's policy.
type DecisionRecord struct {
	AgentID         int
	Step            int    // tick of the run in which the action was taken
	Action          string // action name, e.g. "right" or "cover"
	Reward          float64
	HazardTriggered bool
	Broken          bool // agent state after the action
}

// RunRecord marks the end of a run within the trace.
type RunRecord struct {
	RunID     string
	Steps     int
	Decisions int // decisions recorded during this run
}
