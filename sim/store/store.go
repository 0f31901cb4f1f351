// Package store persists finished run and batch summaries so results can be
// compared across simulator invocations.
package store

import (
	"context"

	"github.com/adversarial-coverage/adsim/sim"
)

// BatchRecord is a stored batch summary. ID is assigned on save.
type BatchRecord struct {
	ID      string           `json:"id"`
	Summary sim.BatchSummary `json:"summary"`
}

// Store defines persistence operations for run history. List operations
// return records in the order they were saved.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run sim.RunSummary) error
	GetRun(ctx context.Context, runID string) (sim.RunSummary, bool, error)
	ListRuns(ctx context.Context) ([]sim.RunSummary, error)
	SaveBatch(ctx context.Context, batch sim.BatchSummary) (string, error)
	ListBatches(ctx context.Context) ([]BatchRecord, error)
}
