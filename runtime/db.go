package runtime

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dshills/flowmark/flow"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// dbSource runs a query and returns rows as an array of column-keyed
// objects. Config: driver ("sqlite" or "mysql"), dsn, query, args
// (array). Credentials belong in the DSN via $secrets templates.
func dbSource(ctx context.Context, req *flow.Request) (any, error) {
	db, err := openDB(req.Config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := stringConfig(req.Config, "query", "")
	if query == "" {
		return nil, fmt.Errorf("db:source requires a query config value")
	}
	args, _ := req.Config["args"].([]any)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// dbSink executes a statement. Config: driver, dsn, statement, args.
// Output is {"rowsAffected": N}.
func dbSink(ctx context.Context, req *flow.Request) (any, error) {
	db, err := openDB(req.Config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stmt := stringConfig(req.Config, "statement", "")
	if stmt == "" {
		return nil, fmt.Errorf("db:sink requires a statement config value")
	}
	args, _ := req.Config["args"].([]any)

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return map[string]any{"rowsAffected": affected}, nil
}

func openDB(cfg map[string]any) (*sql.DB, error) {
	driver := stringConfig(cfg, "driver", "sqlite")
	switch driver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	dsn := stringConfig(cfg, "dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("db runtime requires a dsn config value")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}
