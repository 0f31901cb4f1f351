package store

import (
	"encoding/json"
	"fmt"

	"github.com/adversarial-coverage/adsim/sim"
)

// Stored runs drop the per-cell cover snapshot; the histogram and extrema keep
// the distribution.
func encodeRun(run sim.RunSummary) ([]byte, error) {
	run.CoverCounts = nil
	return json.Marshal(run)
}

func decodeRun(data []byte) (sim.RunSummary, error) {
	var run sim.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return sim.RunSummary{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

func encodeBatch(batch sim.BatchSummary) ([]byte, error) {
	return json.Marshal(batch)
}

func decodeBatch(data []byte) (sim.BatchSummary, error) {
	var batch sim.BatchSummary
	if err := json.Unmarshal(data, &batch); err != nil {
		return sim.BatchSummary{}, fmt.Errorf("decode batch: %w", err)
	}
	return batch, nil
}
