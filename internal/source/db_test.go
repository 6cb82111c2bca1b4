package source

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/tally/internal/value"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "input.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	stmts := []string{
		`CREATE TABLE people (name TEXT NOT NULL, age INTEGER, score REAL, note BLOB)`,
		`INSERT INTO people VALUES ('ann', 30, 1.0, NULL)`,
		`INSERT INTO people VALUES ('bo', 12, 2.0, x'6869')`,
	}
	for _, s := range stmts {
		if _, err := d.DB().Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return d
}

func TestOpen_AppliesPragmas(t *testing.T) {
	d := openTestDB(t)

	var mode string
	if err := d.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma query failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := d.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma query failed: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestQueryBag_Rows(t *testing.T) {
	d := openTestDB(t)

	got, err := d.QueryBag(context.Background(), "SELECT name, age, score, note FROM people ORDER BY name")
	if err != nil {
		t.Fatalf("QueryBag() failed: %v", err)
	}

	want := value.NewBag(
		value.NewRecord(
			value.F("name", value.String("ann")),
			value.F("age", value.Int(30)),
			value.F("score", value.Int(1)),
			value.F("note", value.Null{}),
		),
		value.NewRecord(
			value.F("name", value.String("bo")),
			value.F("age", value.Int(12)),
			value.F("score", value.Int(2)),
			value.F("note", value.String("hi")),
		),
	)
	if !value.Equal(want, got) {
		t.Errorf("QueryBag() = %s, want %s", value.Render(got), value.Render(want))
	}
}

func TestQueryBag_Args(t *testing.T) {
	d := openTestDB(t)

	got, err := d.QueryBag(context.Background(), "SELECT name FROM people WHERE age > ?", 17)
	if err != nil {
		t.Fatalf("QueryBag() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
}

func TestQueryBag_Empty(t *testing.T) {
	d := openTestDB(t)

	got, err := d.QueryBag(context.Background(), "SELECT name FROM people WHERE age > 100")
	if err != nil {
		t.Fatalf("QueryBag() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil bag, got %#v", got)
	}
}

func TestQueryBag_RejectsFractionalReal(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.DB().Exec(`INSERT INTO people VALUES ('cy', 1, 2.5, NULL)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err := d.QueryBag(context.Background(), "SELECT score FROM people")
	if err == nil || !strings.Contains(err.Error(), "non-integral REAL") {
		t.Errorf("want non-integral REAL error, got %v", err)
	}
}

func TestQueryBag_DuplicateColumns(t *testing.T) {
	d := openTestDB(t)

	_, err := d.QueryBag(context.Background(), "SELECT name, name FROM people")
	if err == nil || !strings.Contains(err.Error(), "duplicate column") {
		t.Errorf("want duplicate column error, got %v", err)
	}
}

func TestQueryBag_BadSQL(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.QueryBag(context.Background(), "SELECT FROM"); err == nil {
		t.Error("expected error for invalid SQL")
	}
}

func TestClose_Idempotent(t *testing.T) {
	var d DB
	if err := d.Close(); err != nil {
		t.Errorf("Close() on zero DB = %v", err)
	}
}
