package trace

import (
	"fmt"
	"io"
	"sort"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions  int
	Runs            int
	MeanReward      float64
	TotalReward     float64
	HazardTriggers  int
	BreakCount      int            // decisions after which the agent was broken
	UniqueAgents    int
	ActionHistogram map[string]int // action name → count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionHistogram: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Decisions)
	summary.Runs = len(st.Runs)
	agents := make(map[int]bool)
	for _, d := range st.Decisions {
		summary.ActionHistogram[d.Action]++
		summary.TotalReward += d.Reward
		agents[d.AgentID] = true
		if d.HazardTriggered {
			summary.HazardTriggers++
		}
		if d.Broken {
			summary.BreakCount++
		}
	}
	if summary.TotalDecisions > 0 {
		summary.MeanReward = summary.TotalReward / float64(summary.TotalDecisions)
	}
	summary.UniqueAgents = len(agents)

	return summary
}

// Actions returns the histogram's action names in sorted order.
func (s *TraceSummary) Actions() []string {
	names := make([]string, 0, len(s.ActionHistogram))
	for n := range s.ActionHistogram {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Print writes the decision report.
func (s *TraceSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Decision Trace ===")
	fmt.Fprintf(w, "Decisions            : %d (%d agents, %d runs)\n", s.TotalDecisions, s.UniqueAgents, s.Runs)
	fmt.Fprintf(w, "Reward total / mean  : %.3f / %.4f\n", s.TotalReward, s.MeanReward)
	fmt.Fprintf(w, "Hazard triggers      : %d\n", s.HazardTriggers)
	fmt.Fprintf(w, "Broken after action  : %d\n", s.BreakCount)
	for _, name := range s.Actions() {
		fmt.Fprintf(w, "Action %-14s: %d\n", name, s.ActionHistogram[name])
	}
}
