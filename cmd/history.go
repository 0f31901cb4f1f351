package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adversarial-coverage/adsim/sim/store"
)

var historyRuns int // Most recent runs to list; 0 lists all

// historyCmd lists run and batch summaries saved by earlier invocations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored run and batch summaries (requires --store sqlite)",
	Run: func(cmd *cobra.Command, args []string) {
		if storeKind != store.BackendSQLite {
			logrus.Fatalf("history needs a persistent store: pass --store sqlite --store-path <db>")
		}
		st, err := openStore()
		if err != nil {
			logrus.Fatalf("Opening store: %v", err)
		}
		defer closeStore(st)
		if err := printHistory(context.Background(), st, historyRuns, os.Stdout); err != nil {
			logrus.Fatalf("Reading history: %v", err)
		}
	},
}

// printHistory writes one line per stored run (the last limit runs when
// limit > 0) followed by every stored batch.
func printHistory(ctx context.Context, st store.Store, limit int, w io.Writer) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return err
	}
	batches, err := st.ListBatches(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}

	fmt.Fprintln(w, "=== Run History ===")
	if len(runs) == 0 {
		fmt.Fprintln(w, "(no runs)")
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s run %4d  steps %6d  coverage %.3f  survivability %.3f\n",
			r.RunID, r.Run, r.Steps, r.Coverage, r.Survivability)
	}

	fmt.Fprintln(w, "=== Batch History ===")
	if len(batches) == 0 {
		fmt.Fprintln(w, "(no batches)")
	}
	for _, b := range batches {
		s := b.Summary
		fmt.Fprintf(w, "%-36s batch %3d  runs %3d  steps %.2f (sd %.2f)  coverage %.3f  survivability %.3f\n",
			b.ID, s.Batch, s.Runs, s.Steps.Mean, s.Steps.StdDev, s.Coverage.Mean, s.Survivability.Mean)
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVar(&historyRuns, "last", 0, "List only the most recent N runs (0 = all)")
}
