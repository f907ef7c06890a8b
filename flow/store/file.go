package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore writes one JSON document per run under a directory. Writes
// go through a temp file and rename, so a crash mid-write never leaves a
// truncated snapshot behind.
type FileStore[S any] struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over
// it.
func NewFileStore[S any](dir string) (*FileStore[S], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore[S]{dir: dir}, nil
}

func (s *FileStore[S]) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *FileStore[S]) Save(_ context.Context, runID string, state S) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state for run %s: %w", runID, err)
	}
	tmp, err := os.CreateTemp(s.dir, runID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(runID)); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *FileStore[S]) Load(_ context.Context, runID string) (S, error) {
	var state S
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return state, ErrNotFound
		}
		return state, fmt.Errorf("read snapshot for run %s: %w", runID, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode state for run %s: %w", runID, err)
	}
	return state, nil
}

func (s *FileStore[S]) Delete(_ context.Context, runID string) error {
	err := os.Remove(s.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *FileStore[S]) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
