// Package postgres appends daily tables to a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage"
)

// DefaultTable is used when TableStoreConfig.Table is empty.
const DefaultTable = "beaches"

// TableStoreConfig controls the Postgres connection pool used for daily rows.
type TableStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type beginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// TableStore writes table rows into Postgres with COPY. "Retrieved at" is a
// TIMESTAMPTZ column; every other column is TEXT.
type TableStore struct {
	pool  beginCloser
	table string
}

// NewTableStore creates a Postgres-backed TableStore using the provided config.
func NewTableStore(ctx context.Context, cfg TableStoreConfig) (*TableStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sinks.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewTableStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewTableStoreWithPool constructs a store from an existing pool.
func NewTableStoreWithPool(pool beginCloser, table string) (*TableStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}
	return &TableStore{pool: pool, table: table}, nil
}

// Location returns postgres://<table>; the DSN is never echoed since it may hold credentials.
func (s *TableStore) Location() string {
	return "postgres://" + s.table
}

// Append creates the table when needed and copies every row in one transaction.
func (s *TableStore) Append(ctx context.Context, table *beach.Table) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("postgres store is not configured")
	}
	columns := table.Columns()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(s.table, columns)); err != nil {
		return 0, rollback(ctx, tx, fmt.Errorf("create table %s: %w", s.table, err))
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{s.table}, columns, pgx.CopyFromRows(copyRows(table)))
	if err != nil {
		return 0, rollback(ctx, tx, fmt.Errorf("copy rows: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *TableStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}

func copyRows(table *beach.Table) [][]any {
	records := table.Records()
	out := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, 0, len(rec.Values)+2)
		row = append(row, rec.RetrievedAt, rec.Region)
		for _, v := range rec.Values {
			row = append(row, v.String())
		}
		out[i] = row
	}
	return out
}

func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		kind := "TEXT"
		if c == beach.ColumnRetrievedAt {
			kind = "TIMESTAMPTZ"
		}
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + kind
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
}
