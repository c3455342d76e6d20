package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

// Appender is a relational table that accepts whole daily tables.
type Appender interface {
	Append(ctx context.Context, table *beach.Table) (int64, error)
	Location() string
}

// TableSink appends every row to an Appender.
type TableSink struct {
	name  string
	store Appender
}

// NewTableSink wraps store under name (for example "sqlite" or "postgres").
func NewTableSink(name string, store Appender) (*TableSink, error) {
	if store == nil {
		return nil, errors.New("table store is required")
	}
	if name == "" {
		return nil, errors.New("sink name is required")
	}
	return &TableSink{name: name, store: store}, nil
}

// Name implements crawler.Sink.
func (s *TableSink) Name() string { return s.name }

// Persist implements crawler.Sink.
func (s *TableSink) Persist(ctx context.Context, table *beach.Table) (string, error) {
	n, err := s.store.Append(ctx, table)
	if err != nil {
		return s.store.Location(), fmt.Errorf("append rows: %w", err)
	}
	if n != int64(table.Len()) {
		return s.store.Location(), fmt.Errorf("appended %d of %d rows", n, table.Len())
	}
	return s.store.Location(), nil
}
