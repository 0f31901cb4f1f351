package store

import (
	"context"
	"errors"
	"sync"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/google/uuid"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps history for the lifetime of the process.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        []sim.RunSummary
	runIndex    map[string]int
	batches     []BatchRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = nil
	s.runIndex = make(map[string]int)
	s.batches = nil
	return nil
}

// SaveRun appends run, replacing an earlier record with the same run id in place.
func (s *MemoryStore) SaveRun(_ context.Context, run sim.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.CoverCounts = nil
	if i, ok := s.runIndex[run.RunID]; ok {
		s.runs[i] = run
		return nil
	}
	s.runIndex[run.RunID] = len(s.runs)
	s.runs = append(s.runs, run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (sim.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return sim.RunSummary{}, false, errNotInitialized
	}
	i, ok := s.runIndex[runID]
	if !ok {
		return sim.RunSummary{}, false, nil
	}
	return s.runs[i], true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]sim.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	return append([]sim.RunSummary(nil), s.runs...), nil
}

func (s *MemoryStore) SaveBatch(_ context.Context, batch sim.BatchSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", errNotInitialized
	}
	id := uuid.NewString()
	s.batches = append(s.batches, BatchRecord{ID: id, Summary: batch})
	return id, nil
}

func (s *MemoryStore) ListBatches(_ context.Context) ([]BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	return append([]BatchRecord(nil), s.batches...), nil
}
