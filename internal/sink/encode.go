package sink

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

// Encoder renders a table in one file format.
type Encoder interface {
	Format() string
	Extension() string
	ContentType() string
	Encode(w io.Writer, table *beach.Table) error
}

// EncoderFor returns the encoder for a format name (csv, xlsx, parquet).
func EncoderFor(format string) (Encoder, error) {
	switch format {
	case "csv":
		return CSVEncoder{}, nil
	case "xlsx":
		return XLSXEncoder{}, nil
	case "parquet":
		return ParquetEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// CSVEncoder writes a header row followed by one line per record.
type CSVEncoder struct{}

func (CSVEncoder) Format() string      { return "csv" }
func (CSVEncoder) Extension() string   { return ".csv" }
func (CSVEncoder) ContentType() string { return "text/csv" }

// Encode implements Encoder.
func (CSVEncoder) Encode(w io.Writer, table *beach.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(table.Rows()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// DefaultSheet matches the sheet name spreadsheet tools create by default.
const DefaultSheet = "Sheet1"

// XLSXEncoder writes a single worksheet with a header row.
type XLSXEncoder struct{}

func (XLSXEncoder) Format() string    { return "xlsx" }
func (XLSXEncoder) Extension() string { return ".xlsx" }
func (XLSXEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Encode implements Encoder.
func (XLSXEncoder) Encode(w io.Writer, table *beach.Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	sw, err := f.NewStreamWriter(DefaultSheet)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}
	if err := sw.SetRow("A1", toCells(table.Columns())); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, row := range table.Rows() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i+2, err)
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// ParquetEncoder writes every column as a required UTF-8 string. Parquet
// groups order their fields by name, so the file's column order is
// alphabetical rather than the table's.
type ParquetEncoder struct{}

func (ParquetEncoder) Format() string      { return "parquet" }
func (ParquetEncoder) Extension() string   { return ".parquet" }
func (ParquetEncoder) ContentType() string { return "application/vnd.apache.parquet" }

// Encode implements Encoder.
func (ParquetEncoder) Encode(w io.Writer, table *beach.Table) error {
	columns := table.Columns()
	group := make(parquet.Group, len(columns))
	position := make(map[string]int, len(columns))
	for i, c := range columns {
		group[c] = parquet.String()
		position[c] = i
	}
	schema := parquet.NewSchema("beaches", group)
	fields := schema.Fields()

	pw := parquet.NewWriter(w, schema)
	rows := table.Rows()
	out := make([]parquet.Row, len(rows))
	for r, cells := range rows {
		row := make(parquet.Row, len(fields))
		for i, f := range fields {
			row[i] = parquet.ByteArrayValue([]byte(cells[position[f.Name()]])).Level(0, 0, i)
		}
		out[r] = row
	}
	if len(out) > 0 {
		if _, err := pw.WriteRows(out); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
