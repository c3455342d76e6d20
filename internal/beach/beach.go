// Package beach holds the domain types shared by the extractor, the pipeline
// and the sinks: field specs, beach references, records and the daily table.
package beach

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Column names that lead every table, ahead of the FieldSpec labels.
const (
	ColumnRetrievedAt = "Retrieved at"
	ColumnRegion      = "Region"
)

// TimestampLayout is the ISO-8601 form written into the "Retrieved at" column.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DefaultBaseURL is the Beachwatch listing page the daily job starts from.
const DefaultBaseURL = "https://www.environment.nsw.gov.au/beachmapp"

// Field maps a CSS class found on a beach page to an output column label.
type Field struct {
	Selector string `mapstructure:"selector" json:"selector"`
	Label    string `mapstructure:"label" json:"label"`
	// Multi collects every matching div instead of the first div/span.
	Multi bool `mapstructure:"multi" json:"multi"`
}

// FieldSpec is the ordered list of fields extracted from each page.
type FieldSpec []Field

// DefaultFieldSpec returns the thirteen Beachwatch fields in output order.
func DefaultFieldSpec() FieldSpec {
	return FieldSpec{
		{Selector: "navbar-title-text", Label: "Beach name"},
		{Selector: "beach-timelapse-panel", Label: "Data last updated"},
		{Selector: "bw-status-text", Label: "Pollution status"},
		{Selector: "bw-air-temp-value", Label: "Maximum forecast air temperature"},
		{Selector: "bw-ocean-temp-value", Label: "Water temperature"},
		{Selector: "bw-weather-text", Label: "Weather forecast"},
		{Selector: "bw-swell", Label: "Swell"},
		{Selector: "bw-wind", Label: "Wind"},
		{Selector: "bw-patrol-info", Label: "Patrol info"},
		{Selector: "bw-rainfall", Label: "Rainfall"},
		{Selector: "bw-high-tide", Label: "High tide"},
		{Selector: "bw-low-tide", Label: "Low tide"},
		{Selector: "bw-alert-text", Label: "Alert", Multi: true},
	}
}

// Validate rejects empty specs and duplicate selectors or labels.
func (s FieldSpec) Validate() error {
	if len(s) == 0 {
		return errors.New("field spec must contain at least one field")
	}
	selectors := make(map[string]struct{}, len(s))
	labels := make(map[string]struct{}, len(s))
	for i, f := range s {
		if strings.TrimSpace(f.Selector) == "" {
			return fmt.Errorf("field %d: selector is required", i)
		}
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("field %d: label is required", i)
		}
		if f.Label == ColumnRetrievedAt || f.Label == ColumnRegion {
			return fmt.Errorf("field %d: label %q is reserved", i, f.Label)
		}
		if _, dup := selectors[f.Selector]; dup {
			return fmt.Errorf("field %d: duplicate selector %q", i, f.Selector)
		}
		if _, dup := labels[f.Label]; dup {
			return fmt.Errorf("field %d: duplicate label %q", i, f.Label)
		}
		selectors[f.Selector] = struct{}{}
		labels[f.Label] = struct{}{}
	}
	return nil
}

// Labels returns the output labels in spec order.
func (s FieldSpec) Labels() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Label
	}
	return out
}

// Columns returns the full table schema for this spec.
func (s FieldSpec) Columns() []string {
	return append([]string{ColumnRetrievedAt, ColumnRegion}, s.Labels()...)
}

// IndexOf returns the position of label in the field spec, or -1.
func (s FieldSpec) IndexOf(label string) int {
	for i, f := range s {
		if f.Label == label {
			return i
		}
	}
	return -1
}

// BeachRef points at a single beach page discovered under a region.
type BeachRef struct {
	Region string `json:"region"`
	URL    string `json:"url"`
}

// Value holds one extracted cell. Multi-valued fields carry List until the
// record is finalised; everything else carries Scalar.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// ScalarValue wraps a single string.
func ScalarValue(s string) Value {
	return Value{Scalar: s}
}

// ListValue wraps an ordered list of strings.
func ListValue(items []string) Value {
	return Value{List: append([]string{}, items...), IsList: true}
}

// String collapses the value into a single cell, joining lists with a space.
func (v Value) String() string {
	if v.IsList {
		return strings.Join(v.List, " ")
	}
	return v.Scalar
}

// Joined returns the scalar form of v.
func (v Value) Joined() Value {
	if !v.IsList {
		return v
	}
	return ScalarValue(v.String())
}

// LabeledValue pairs a field label with what was extracted for it.
type LabeledValue struct {
	Label string
	Value Value
	// Fallback is set when Value is the selector sentinel.
	Fallback bool
}

// Record is one table row. Values are aligned with the FieldSpec.
type Record struct {
	RetrievedAt time.Time
	Region      string
	Values      []Value
}

// Cells renders the record in column order.
func (r Record) Cells() []string {
	out := make([]string, 0, len(r.Values)+2)
	out = append(out, r.RetrievedAt.Format(TimestampLayout), r.Region)
	for _, v := range r.Values {
		out = append(out, v.String())
	}
	return out
}

// ErrTableFrozen is returned when appending to a table handed to sinks.
var ErrTableFrozen = errors.New("table is frozen")

// Table is the append-only daily result set.
type Table struct {
	spec    FieldSpec
	records []Record
	frozen  bool
}

// NewTable returns an empty table for spec.
func NewTable(spec FieldSpec) *Table {
	return &Table{spec: append(FieldSpec(nil), spec...)}
}

// Spec returns a copy of the table's field spec.
func (t *Table) Spec() FieldSpec {
	return append(FieldSpec(nil), t.spec...)
}

// Columns returns the table schema: retrieved-at, region, then labels.
func (t *Table) Columns() []string {
	return t.spec.Columns()
}

// Append adds a record, joining multi-valued cells immediately so a partial
// table never carries unjoined lists.
func (t *Table) Append(rec Record) error {
	if t.frozen {
		return ErrTableFrozen
	}
	if len(rec.Values) != len(t.spec) {
		return fmt.Errorf("record has %d values, spec has %d fields", len(rec.Values), len(t.spec))
	}
	values := make([]Value, len(rec.Values))
	for i, v := range rec.Values {
		values[i] = v.Joined()
	}
	rec.Values = values
	t.records = append(t.records, rec)
	return nil
}

// Freeze marks the table read-only.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether the table has been handed off.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.records)
}

// Records returns a copy of the rows.
func (t *Table) Records() []Record {
	return append([]Record(nil), t.records...)
}

// Rows renders every record as string cells in column order.
func (t *Table) Rows() [][]string {
	out := make([][]string, len(t.records))
	for i, rec := range t.records {
		out[i] = rec.Cells()
	}
	return out
}

// Column returns every row's value for label, or nil when the label is unknown.
func (t *Table) Column(label string) []string {
	idx := t.spec.IndexOf(label)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.records))
	for i, rec := range t.records {
		out[i] = rec.Values[idx].String()
	}
	return out
}

// StaleRows counts rows whose label value does not contain marker. Rows that
// hold the extraction sentinel count as stale.
func (t *Table) StaleRows(label, marker string) int {
	if marker == "" {
		return 0
	}
	stale := 0
	for _, v := range t.Column(label) {
		if !strings.Contains(v, marker) {
			stale++
		}
	}
	return stale
}
