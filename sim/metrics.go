// Renders run and batch statistics for operators and logs.

package sim

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// Print writes the full run report.
// Includes coverage, cover-count distribution over free cells and survivability.
func (r RunSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Run Statistics ===")
	fmt.Fprintf(w, "Run                  : %d (batch run %d)\n", r.Run, r.BatchRun)
	fmt.Fprintf(w, "Time steps           : %d\n", r.Steps)
	fmt.Fprintf(w, "Cover events         : %d\n", r.CoverEvents)
	fmt.Fprintf(w, "Total cells          : %d\n", r.TotalCells)
	fmt.Fprintf(w, "Free cells           : %d\n", r.FreeCells)
	fmt.Fprintf(w, "Covered free cells   : %d (%.1f%%)\n", r.CoveredCells, r.Coverage*100)
	if r.FreeCells > 0 {
		fmt.Fprintf(w, "Avg covers per cell  : %.2f\n", r.AvgCoversPerFreeCell)
		fmt.Fprintf(w, "Max / min covers     : %d / %d\n", r.MaxCoverCount, r.MinCoverCount)
		for _, n := range sortedIntKeys(r.CoverHistogram) {
			fmt.Fprintf(w, "Cells covered %-6d : %d\n", n, r.CoverHistogram[n])
		}
	}
	fmt.Fprintf(w, "Agents (surviving)   : %d (%d)\n", r.Agents, r.Surviving)
	fmt.Fprintf(w, "Team survivability   : %.3f\n", r.Survivability)
	for _, name := range sortedKeys(r.Extras) {
		fmt.Fprintf(w, "%-21s: %g\n", name, r.Extras[name])
	}
}

// Print writes the batch report with mean and standard deviation per metric.
func (b BatchSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Batch Statistics ===")
	fmt.Fprintf(w, "Batch                : %d (%d runs)\n", b.Batch, b.Runs)
	fmt.Fprintf(w, "Steps per run        : %.2f (sd %.2f)\n", b.Steps.Mean, b.Steps.StdDev)
	fmt.Fprintf(w, "Survivability        : %.3f (sd %.3f)\n", b.Survivability.Mean, b.Survivability.StdDev)
	fmt.Fprintf(w, "Coverage             : %.3f (sd %.3f)\n", b.Coverage.Mean, b.Coverage.StdDev)
	for _, name := range b.ExtraNames() {
		m := b.Extras[name]
		fmt.Fprintf(w, "%-21s: %.3f (sd %.3f)\n", name, m.Mean, m.StdDev)
	}
}

// LogRunEnd emits the one-line run summary at Info level.
func LogRunEnd(r RunSummary) {
	fields := logrus.Fields{
		"run":           r.Run,
		"steps":         r.Steps,
		"coverage":      fmt.Sprintf("%.3f", r.Coverage),
		"survivability": fmt.Sprintf("%.3f", r.Survivability),
		"agents":        fmt.Sprintf("%d/%d", r.Surviving, r.Agents),
	}
	for k, v := range r.Extras {
		fields[k] = v
	}
	logrus.WithFields(fields).Info("run end")
}

// LogBatchEnd emits the one-line batch summary at Info level.
func LogBatchEnd(b BatchSummary) {
	logrus.Infof("batch %d end (size=%d): steps=%.1f (%.1f), survivability=%.3f (%.3f), coverage=%.3f (%.3f)",
		b.Batch, b.Runs, b.Steps.Mean, b.Steps.StdDev,
		b.Survivability.Mean, b.Survivability.StdDev, b.Coverage.Mean, b.Coverage.StdDev)
}

func sortedIntKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
