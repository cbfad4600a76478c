// Package memstore is an in-memory implementation of the checkpoint and
// result stores, used by tests and small one-shot runs.
package memstore

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu          sync.RWMutex
	keep        int
	checkpoints map[string][]checkpoint.Checkpoint // runID → newest last
	runs        map[string]checkpoint.RunRecord
	keywords    map[string][]keyword.Record
	clusters    map[string][]keyword.Cluster
}

var (
	_ checkpoint.Store       = (*Store)(nil)
	_ checkpoint.ResultStore = (*Store)(nil)
)

// New creates an empty in-memory store that keeps the default number of
// checkpoints per run.
func New() *Store {
	return NewWithKeep(checkpoint.DefaultKeep)
}

// NewWithKeep creates a store with a custom prune limit.
func NewWithKeep(keep int) *Store {
	if keep < 1 {
		keep = checkpoint.DefaultKeep
	}
	return &Store{
		keep:        keep,
		checkpoints: make(map[string][]checkpoint.Checkpoint),
		runs:        make(map[string]checkpoint.RunRecord),
		keywords:    make(map[string][]keyword.Record),
		clusters:    make(map[string][]keyword.Cluster),
	}
}

// Close implements checkpoint.Store.
func (s *Store) Close() error { return nil }

// Save assigns ID, timestamp and memory sample, appends the checkpoint,
// and prunes older entries beyond the keep limit.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) (checkpoint.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.ID = checkpoint.NewID()
	cp.CreatedAt = time.Now().UTC()
	cp.MemoryUsageMB = memoryUsageMB()

	list := append(s.checkpoints[cp.RunID], cp)
	if len(list) > s.keep {
		list = list[len(list)-s.keep:]
	}
	s.checkpoints[cp.RunID] = list

	return checkpoint.Receipt{
		CheckpointID:   cp.ID,
		ValidationHash: cp.ValidationHash,
		MemoryUsageMB:  cp.MemoryUsageMB,
		Timestamp:      cp.CreatedAt,
	}, nil
}

// LoadLatest returns the newest recoverable checkpoint after verifying
// its integrity hash.
func (s *Store) LoadLatest(ctx context.Context, runID string) (checkpoint.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.checkpoints[runID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].Recoverable {
			continue
		}
		if err := list[i].Verify(); err != nil {
			return checkpoint.Checkpoint{}, false, err
		}
		return list[i], true, nil
	}
	return checkpoint.Checkpoint{}, false, nil
}

// ListAll returns summaries for a run, newest first.
func (s *Store) ListAll(ctx context.Context, runID string) ([]checkpoint.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.checkpoints[runID]
	out := make([]checkpoint.Summary, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		cp := list[i]
		out = append(out, checkpoint.Summary{
			ID:                cp.ID,
			Stage:             cp.Stage,
			BatchNumber:       cp.BatchNumber,
			KeywordsProcessed: cp.KeywordsProcessed,
			Recoverable:       cp.Recoverable,
			CreatedAt:         cp.CreatedAt,
		})
	}
	return out, nil
}

// Corrupt flips one byte of the newest checkpoint's payload. Test hook
// for integrity validation.
func (s *Store) Corrupt(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.checkpoints[runID]
	if len(list) == 0 {
		return
	}
	cp := &list[len(list)-1]
	if cp.State == "" {
		cp.State = "x"
		return
	}
	b := []byte(cp.State)
	b[0] ^= 0xff
	cp.State = string(b)
}

// SaveRun implements checkpoint.ResultStore.
func (s *Store) SaveRun(ctx context.Context, run checkpoint.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.UpdatedAt = time.Now().UTC()
	s.runs[run.ID] = run
	return nil
}

// GetRun implements checkpoint.ResultStore.
func (s *Store) GetRun(ctx context.Context, runID string) (checkpoint.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return run, ok, nil
}

// SaveKeywords stores the finished records for a run.
func (s *Store) SaveKeywords(ctx context.Context, runID string, records []keyword.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[runID] = append([]keyword.Record(nil), records...)
	return nil
}

// LoadKeywords returns stored records, optionally filtered by tier and
// capped at limit, preserving stored (ranked) order.
func (s *Store) LoadKeywords(ctx context.Context, runID string, tier keyword.Tier, limit int) ([]keyword.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []keyword.Record
	for _, r := range s.keywords[runID] {
		if tier != "" && r.PriorityTier != tier {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SaveClusters stores the finished clusters for a run.
func (s *Store) SaveClusters(ctx context.Context, runID string, clusters []keyword.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[runID] = append([]keyword.Cluster(nil), clusters...)
	return nil
}

// LoadClusters returns stored clusters ordered by id.
func (s *Store) LoadClusters(ctx context.Context, runID string) ([]keyword.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]keyword.Cluster(nil), s.clusters[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func memoryUsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1024 * 1024)
}
