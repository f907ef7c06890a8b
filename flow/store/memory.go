package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in a map, deep-copied through JSON so
// callers cannot mutate stored state. Intended for tests and embedded
// use.
type MemoryStore[S any] struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore[S any]() *MemoryStore[S] {
	return &MemoryStore[S]{runs: map[string][]byte{}}
}

func (s *MemoryStore[S]) Save(_ context.Context, runID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state for run %s: %w", runID, err)
	}
	s.mu.Lock()
	s.runs[runID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[S]) Load(_ context.Context, runID string) (S, error) {
	var state S
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return state, ErrNotFound
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode state for run %s: %w", runID, err)
	}
	return state, nil
}

func (s *MemoryStore[S]) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore[S]) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
