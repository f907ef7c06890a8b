// Package store provides persistence backends for execution state
// checkpoints. The executor saves the state after every wave keyed by
// run ID; a later resume loads it back. Backends cover in-memory (tests),
// flat files, SQLite and MySQL.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// Store persists one serializable document per run.
//
// Type parameter S is the state type; it must round-trip through
// encoding/json.
type Store[S any] interface {
	// Save writes the state for a run, replacing any previous snapshot.
	Save(ctx context.Context, runID string, state S) error

	// Load retrieves the latest snapshot for a run. Returns ErrNotFound
	// when the run has never been saved.
	Load(ctx context.Context, runID string) (S, error)

	// Delete removes a run's snapshot. Deleting a missing run is not an
	// error.
	Delete(ctx context.Context, runID string) error

	// List returns the run IDs with stored snapshots, sorted.
	List(ctx context.Context) ([]string, error)
}
