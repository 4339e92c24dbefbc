// Package store wraps the embedded libSQL database: the relational client
// the engine's database nodes call into, and the run log that persists
// engine events for the dashboard's history view.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/sequent-io/sequent/pkg/schema"
)

// Client is the relational client backing DatabaseRead and DatabaseWrite
// nodes. Safe for concurrent use; writes are serialized by the single
// connection.
type Client struct {
	db *sql.DB
}

// Open opens a libSQL database at the given path. The path should be a
// file URI, e.g. "file:/path/to/db.db".
func Open(dbPath string) (*Client, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying *sql.DB for the run log.
func (c *Client) DB() *sql.DB { return c.db }

// Close closes the database.
func (c *Client) Close() error { return c.db.Close() }

// Migrate applies any pending run-log migrations.
func (c *Client) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, c.db)
}

// Query runs a parameterized SELECT and returns every row as a map keyed
// by column name.
func (c *Client) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDatabase, "query failed").WithCause(err).
			WithDetails(map[string]any{"query": query})
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// libsql hands TEXT back as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetColumns lists the column names of a table.
func (c *Client) GetColumns(ctx context.Context, table string) ([]string, error) {
	if !validIdent(table) {
		return nil, invalidIdent(table)
	}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// CreateTableIfMissing provisions an empty table with a rowid key and a
// creation timestamp. Value columns are added on first write.
func (c *Client) CreateTableIfMissing(ctx context.Context, table string) error {
	if !validIdent(table) {
		return invalidIdent(table)
	}
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, table))
	return err
}

// AddColumn appends a column typed for the given sample value.
func (c *Client) AddColumn(ctx context.Context, table, column string, sample any) error {
	if !validIdent(table) {
		return invalidIdent(table)
	}
	if !validIdent(column) {
		return invalidIdent(column)
	}
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %q ADD COLUMN %q %s`, table, column, columnType(sample)))
	return err
}

// WriteRow inserts one row, provisioning the table and any missing columns
// first (schema-on-write). When keyColumn names one of the row's columns
// the write is an upsert on that column.
func (c *Client) WriteRow(ctx context.Context, table string, row map[string]any, keyColumn string) error {
	if len(row) == 0 {
		return schema.NewError(schema.ErrCodeDatabase, "empty row")
	}
	if !validIdent(table) {
		return invalidIdent(table)
	}

	if err := c.CreateTableIfMissing(ctx, table); err != nil {
		return err
	}
	existing, err := c.GetColumns(ctx, table)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, col := range existing {
		have[col] = true
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		if !validIdent(col) {
			return invalidIdent(col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		if have[col] {
			continue
		}
		if err := c.AddColumn(ctx, table, col, row[col]); err != nil {
			return err
		}
	}

	_, hasKey := row[keyColumn]
	if keyColumn != "" && hasKey {
		if !validIdent(keyColumn) {
			return invalidIdent(keyColumn)
		}
		// upserts need a unique index on the key column
		_, err = c.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %q ON %q (%q)`,
			"uix_"+table+"_"+keyColumn, table, keyColumn))
		if err != nil {
			return err
		}
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
		marks[i] = "?"
		args[i] = row[col]
	}

	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if keyColumn != "" && hasKey {
		var sets []string
		for _, col := range cols {
			if col == keyColumn {
				continue
			}
			sets = append(sets, fmt.Sprintf("%q=excluded.%q", col, col))
		}
		if len(sets) > 0 {
			query += fmt.Sprintf(` ON CONFLICT(%q) DO UPDATE SET %s`, keyColumn, strings.Join(sets, ", "))
		} else {
			query += fmt.Sprintf(` ON CONFLICT(%q) DO NOTHING`, keyColumn)
		}
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return schema.NewErrorf(schema.ErrCodeDatabase, "write to %q failed", table).WithCause(err)
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool {
	return identRe.MatchString(s)
}

func invalidIdent(s string) error {
	return schema.NewErrorf(schema.ErrCodeDatabase, "invalid identifier %q", s)
}

// columnType picks a SQLite column type from a Go value.
func columnType(v any) string {
	switch v.(type) {
	case float64, float32:
		return "REAL"
	case int, int32, int64, uint64, bool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}
