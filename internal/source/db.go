package source

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tally/internal/value"
)

// DB reads input bags from a SQLite database.
type DB struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// DB returns the underlying sql.DB for direct statements.
func (d *DB) DB() *sql.DB {
	return d.db
}

// QueryBag runs query and returns one record per row, keyed by column name.
//
// Column conversion:
//   - INTEGER -> Int, BOOLEAN -> Bool
//   - TEXT, BLOB -> String
//   - NULL -> Null
//   - REAL -> Int when integral, otherwise an error
//   - DATETIME -> String (RFC 3339)
func (d *DB) QueryBag(ctx context.Context, query string, args ...any) (value.Bag, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q in result set", c)
		}
		seen[c] = true
	}

	bag := value.Bag{}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(bag)+1, err)
		}
		rec := make(value.Record, len(cols))
		for i, c := range cols {
			v, err := fromColumn(raw[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", len(bag)+1, c, err)
			}
			rec[c] = v
		}
		bag = append(bag, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return bag, nil
}

func fromColumn(v any) (value.Value, error) {
	switch x := v.(type) {
	case nil:
		return value.Null{}, nil
	case int64:
		return value.Int(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x >= math.MaxInt64 || x < math.MinInt64 {
			return nil, fmt.Errorf("non-integral REAL %v is not allowed", x)
		}
		return value.Int(int64(x)), nil
	case bool:
		return value.Bool(x), nil
	case string:
		return value.String(x), nil
	case []byte:
		return value.String(string(x)), nil
	case time.Time:
		return value.String(x.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
