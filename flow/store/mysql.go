package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists snapshots in a MySQL table, for deployments that
// already run MySQL and want run state visible to external tooling.
//
//	store, err := NewMySQLStore[*flow.ExecutionState]("user:pass@tcp(localhost:3306)/flowmark?parseTime=true")
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore connects with the given DSN, verifies the connection and
// ensures the runs table exists.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id   VARCHAR(64) PRIMARY KEY,
	saved_at DATETIME NOT NULL,
	state    MEDIUMTEXT NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &MySQLStore[S]{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQLStore[S]) Close() error { return s.db.Close() }

func (s *MySQLStore[S]) Save(ctx context.Context, runID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state for run %s: %w", runID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, saved_at, state) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE saved_at = VALUES(saved_at), state = VALUES(state)`,
		runID, time.Now().UTC(), string(data))
	if err != nil {
		return fmt.Errorf("save snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *MySQLStore[S]) Load(ctx context.Context, runID string) (S, error) {
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

func (s *MySQLStore[S]) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *MySQLStore[S]) List(ctx context.Context) ([]string, error) {
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
