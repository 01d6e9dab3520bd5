package ai

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openDataDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// each new sqlite :memory: connection is a fresh database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE albums (id INTEGER PRIMARY KEY, title TEXT, sales INTEGER)`,
		`CREATE TABLE artists (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO albums VALUES (1, 'First', 120), (2, 'Second', 80), (3, 'Third', 45)`,
		`INSERT INTO artists VALUES (1, 'Ada'), (2, 'Linus')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestValidateReadOnly(t *testing.T) {
	cases := []struct {
		query string
		ok    bool
	}{
		{"SELECT * FROM albums", true},
		{"  select id from albums  ", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"SELECT * FROM albums;", true},
		{"DELETE FROM albums", false},
		{"DROP TABLE albums", false},
		{"INSERT INTO albums VALUES (4, 'x', 0)", false},
		{"UPDATE albums SET sales = 0", false},
		{"CREATE TABLE x (id INT)", false},
		{"TRUNCATE TABLE albums", false},
		{"PRAGMA foreign_keys = OFF", false},
		{"SELECT 1; DROP TABLE albums", false},
		{"", false},
	}
	for _, tc := range cases {
		err := validateReadOnly(tc.query)
		if tc.ok && err != nil {
			t.Errorf("validateReadOnly(%q) = %v, want nil", tc.query, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("validateReadOnly(%q) = nil, want error", tc.query)
			} else if !errors.Is(err, ErrDestructiveQuery) && tc.query != "" {
				t.Errorf("validateReadOnly(%q) = %v, want ErrDestructiveQuery", tc.query, err)
			}
		}
	}
}

func TestRunQueryRejectsDestructiveBeforeExecution(t *testing.T) {
	db := openDataDB(t)
	s := newSQLTools(db, "sqlite3")

	if _, err := s.RunQuery(context.Background(), "DELETE FROM albums"); !errors.Is(err, ErrDestructiveQuery) {
		t.Fatalf("expected ErrDestructiveQuery, got %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM albums`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows were modified, count = %d", n)
	}
}

func TestRunQueryRendersRows(t *testing.T) {
	db := openDataDB(t)
	s := newSQLTools(db, "sqlite3")

	result, err := s.RunQuery(context.Background(), "SELECT title, sales FROM albums ORDER BY id")
	if err != nil {
		t.Fatalf("run query: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result.Rows))
	}
	rendered := result.Render()
	for _, want := range []string{"title", "sales", "First", "120"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered result missing %q:\n%s", want, rendered)
		}
	}
}

func TestListAndResolveTables(t *testing.T) {
	db := openDataDB(t)
	s := newSQLTools(db, "sqlite3")

	tables, err := s.ListTables(context.Background())
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %v", tables)
	}

	resolved, err := s.ResolveTables(context.Background(), []string{"ALBUMS", "Artists"})
	if err != nil {
		t.Fatalf("resolve tables: %v", err)
	}
	if len(resolved) != 2 || resolved[0] != "albums" || resolved[1] != "artists" {
		t.Fatalf("unexpected resolution: %v", resolved)
	}

	if _, err := s.ResolveTables(context.Background(), []string{"missing"}); err == nil {
		t.Fatalf("expected error for unknown table")
	}

	// a valid name must not mask a misspelled one
	_, err = s.ResolveTables(context.Background(), []string{"albums", "albmus"})
	if err == nil || !strings.Contains(err.Error(), "albmus") {
		t.Fatalf("expected error naming the unknown table, got %v", err)
	}
}

func TestTableSchemaContainsDDL(t *testing.T) {
	db := openDataDB(t)
	s := newSQLTools(db, "sqlite3")

	ddl, err := s.TableSchema(context.Background(), []string{"albums"})
	if err != nil {
		t.Fatalf("table schema: %v", err)
	}
	if !strings.Contains(ddl, "CREATE TABLE albums") {
		t.Fatalf("schema missing CREATE statement:\n%s", ddl)
	}
}
