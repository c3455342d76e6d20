// Package sqlite appends daily tables to an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage"
)

// DefaultTable is the table the daily rows are appended to.
const DefaultTable = "beaches"

// Config controls the database file and target table.
type Config struct {
	Path        string
	Table       string
	BusyTimeout time.Duration
}

// TableStore appends rows to one SQLite table, creating it on first use. Every
// column is TEXT, matching the string cells of the CSV output.
type TableStore struct {
	db    *sql.DB
	path  string
	table string
}

// Open opens (and creates when missing) the database file.
func Open(cfg Config) (*TableStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	return &TableStore{db: db, path: cfg.Path, table: table}, nil
}

// Close releases the database handle.
func (s *TableStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *TableStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Location describes where rows land, as sqlite://<path>#<table>.
func (s *TableStore) Location() string {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		abs = s.path
	}
	return fmt.Sprintf("sqlite://%s#%s", abs, s.table)
}

// Append writes every row of table in a single transaction. Columns missing
// from an existing table are added first, so a widened field spec keeps
// appending to the same table.
func (s *TableStore) Append(ctx context.Context, table *beach.Table) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store is not configured")
	}
	columns := table.Columns()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createTableSQL(s.table, columns)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", s.table, err)
	}
	if err := addMissingColumns(ctx, tx, s.table, columns); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(s.table, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, row := range table.Rows() {
		args := make([]any, len(row))
		for i, cell := range row {
			args[i] = cell
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("insert row %d: %w", n+1, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Count returns the number of rows in the table.
func (s *TableStore) Count(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(s.table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func addMissingColumns(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	existing := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close table info: %w", err)
	}
	for _, col := range columns {
		if _, ok := existing[col]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(col))
		if _, err := tx.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %q: %w", col, err)
		}
	}
	return nil
}

func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// quoteIdent wraps an identifier in double quotes; labels contain spaces.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
