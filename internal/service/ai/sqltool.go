package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrDestructiveQuery marks statements rejected before execution.
var ErrDestructiveQuery = errors.New("destructive or non-select statements are not allowed")

// maxResultRows caps how much of a result set is handed back to the
// model for narration.
const maxResultRows = 200

// sqlTools adapts the data database for the router: table listing,
// schema lookup and guarded query execution.
type sqlTools struct {
	db      *sql.DB
	dialect string // sqlite3 or mysql
}

func newSQLTools(db *sql.DB, dialect string) *sqlTools {
	dialect = strings.ToLower(dialect)
	if dialect == "sqlite" {
		dialect = "sqlite3"
	}
	return &sqlTools{db: db, dialect: dialect}
}

// ListTables enumerates user tables in the data database.
func (s *sqlTools) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch s.dialect {
	case "sqlite3":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "mysql":
		query = `SHOW TABLES`
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", s.dialect)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ResolveTables maps requested table names onto the schema's canonical
// casing. A name with no case-insensitive match is an error, never a
// silent drop.
func (s *sqlTools) ResolveTables(ctx context.Context, requested []string) ([]string, error) {
	actual, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	byLower := make(map[string]string, len(actual))
	for _, name := range actual {
		byLower[strings.ToLower(name)] = name
	}
	var resolved, unknown []string
	for _, want := range requested {
		if canonical, ok := byLower[strings.ToLower(strings.TrimSpace(want))]; ok {
			resolved = append(resolved, canonical)
		} else {
			unknown = append(unknown, strings.TrimSpace(want))
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown tables: %s", strings.Join(unknown, ", "))
	}
	return resolved, nil
}

// TableSchema returns the CREATE statements for the given tables.
func (s *sqlTools) TableSchema(ctx context.Context, tables []string) (string, error) {
	tables, err := s.ResolveTables(ctx, tables)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", errors.New("no matching tables found")
	}

	var builder strings.Builder
	for _, table := range tables {
		var ddl string
		switch s.dialect {
		case "sqlite3":
			err = s.db.QueryRowContext(ctx,
				`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
			).Scan(&ddl)
		case "mysql":
			var name string
			err = s.db.QueryRowContext(ctx,
				fmt.Sprintf("SHOW CREATE TABLE `%s`", table),
			).Scan(&name, &ddl)
		default:
			return "", fmt.Errorf("unsupported dialect: %s", s.dialect)
		}
		if err != nil {
			return "", fmt.Errorf("schema for %s: %w", table, err)
		}
		builder.WriteString(ddl)
		builder.WriteString(";\n\n")
	}
	return strings.TrimSpace(builder.String()), nil
}

// RunQuery executes a validated read-only statement and returns up to
// maxResultRows rows as strings.
func (s *sqlTools) RunQuery(ctx context.Context, query string) (*queryResult, error) {
	if err := validateReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("result columns: %w", err)
	}

	result := &queryResult{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= maxResultRows {
			result.Truncated = true
			break
		}
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make([]string, len(columns))
		for i, v := range raw {
			record[i] = cellString(v)
		}
		result.Rows = append(result.Rows, record)
	}
	return result, rows.Err()
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

var destructiveKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate", "replace",
	"grant", "revoke", "attach", "detach", "pragma", "vacuum",
}

// validateReadOnly rejects anything that is not a single SELECT (or
// WITH ... SELECT) statement. The check runs before execution, so a
// destructive statement never reaches the database.
func validateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return errors.New("query must not be empty")
	}

	// a trailing semicolon is fine; anything after it is not
	if idx := strings.Index(trimmed, ";"); idx >= 0 {
		if rest := strings.TrimSpace(trimmed[idx+1:]); rest != "" {
			return fmt.Errorf("%w: multiple statements", ErrDestructiveQuery)
		}
		trimmed = trimmed[:idx]
	}

	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) == 0 {
		return errors.New("query must not be empty")
	}
	first := fields[0]
	if first != "select" && first != "with" {
		for _, kw := range destructiveKeywords {
			if first == kw {
				return fmt.Errorf("%w: %s", ErrDestructiveQuery, strings.ToUpper(kw))
			}
		}
		return fmt.Errorf("%w: %s", ErrDestructiveQuery, strings.ToUpper(first))
	}
	return nil
}

// queryResult holds one executed query's rows rendered as strings.
type queryResult struct {
	Columns   []string
	Rows      [][]string
	Truncated bool
}

// Render formats the result as a pipe-separated table for the model.
func (r *queryResult) Render() string {
	if len(r.Rows) == 0 {
		return "(no rows)"
	}
	var builder strings.Builder
	builder.WriteString(strings.Join(r.Columns, " | "))
	builder.WriteByte('\n')
	for _, row := range r.Rows {
		builder.WriteString(strings.Join(row, " | "))
		builder.WriteByte('\n')
	}
	if r.Truncated {
		builder.WriteString(fmt.Sprintf("(truncated to %d rows)\n", maxResultRows))
	}
	return strings.TrimRight(builder.String(), "\n")
}
