package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single-file SQLite database using
// the pure-Go modernc driver, so no cgo toolchain is required.
type SQLiteStore[S any] struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// runs table exists. Use ":memory:" for an ephemeral database.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id   TEXT PRIMARY KEY,
	saved_at TIMESTAMP NOT NULL,
	state    TEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &SQLiteStore[S]{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore[S]) Close() error { return s.db.Close() }

func (s *SQLiteStore[S]) Save(ctx context.Context, runID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state for run %s: %w", runID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, saved_at, state) VALUES (?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET saved_at = excluded.saved_at, state = excluded.state`,
		runID, time.Now().UTC(), string(data))
	if err != nil {
		return fmt.Errorf("save snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore[S]) Load(ctx context.Context, runID string) (S, error) {
	var state S
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return state, ErrNotFound
	}
	if err != nil {
		return state, fmt.Errorf("load snapshot for run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return state, fmt.Errorf("decode state for run %s: %w", runID, err)
	}
	return state, nil
}

func (s *SQLiteStore[S]) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore[S]) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
