package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"situsim/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]map[int64]model.WorldSnapshot
	summaries   map[string]model.RunSummary
	failures    map[string][]model.AgentFailure
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init is idempotent; use Reset to drop stored records.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.clearLocked()
	s.initialized = true
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.initialized = true
	return nil
}

func (s *MemoryStore) clearLocked() {
	s.snapshots = make(map[string]map[int64]model.WorldSnapshot)
	s.summaries = make(map[string]model.RunSummary)
	s.failures = make(map[string][]model.AgentFailure)
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.WorldSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	byTime, ok := s.snapshots[snapshot.RunID]
	if !ok {
		byTime = make(map[int64]model.WorldSnapshot)
		s.snapshots[snapshot.RunID] = byTime
	}
	byTime[snapshot.Time] = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string, time int64) (model.WorldSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[runID][time]
	if !ok {
		return model.WorldSnapshot{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, runID string) (model.WorldSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTime := s.snapshots[runID]
	if len(byTime) == 0 {
		return model.WorldSnapshot{}, false, nil
	}
	latest := int64(-1)
	for t := range byTime {
		if t > latest {
			latest = t
		}
	}
	return cloneSnapshot(byTime[latest]), true, nil
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.summaries[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	return summary, ok, nil
}

func (s *MemoryStore) ListRunSummaries(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		out = append(out, summary)
	}
	sortRunSummaries(out)
	return out, nil
}

func (s *MemoryStore) SaveAgentFailure(_ context.Context, failure model.AgentFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.failures[failure.RunID] = append(s.failures[failure.RunID], failure)
	return nil
}

func (s *MemoryStore) ListAgentFailures(_ context.Context, runID string) ([]model.AgentFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.AgentFailure{}, s.failures[runID]...), nil
}

// sortRunSummaries orders by creation time, then run id.
func sortRunSummaries(summaries []model.RunSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAtUTC != summaries[j].CreatedAtUTC {
			return summaries[i].CreatedAtUTC < summaries[j].CreatedAtUTC
		}
		return summaries[i].RunID < summaries[j].RunID
	})
}

func cloneSnapshot(s model.WorldSnapshot) model.WorldSnapshot {
	out := s
	out.Agents = append([]model.AgentState(nil), s.Agents...)
	out.Objects = append([]model.EnvObjectState(nil), s.Objects...)
	out.Events = make([]model.Event, 0, len(s.Events))
	for _, e := range s.Events {
		out.Events = append(out.Events, e.Clone())
	}
	return out
}
