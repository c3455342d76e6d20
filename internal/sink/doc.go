// Package sink turns a frozen beach.Table into files, relational rows and
// object-store uploads. Every type here satisfies crawler.Sink.
//
// Encoders (CSV, XLSX, Parquet) render a table to bytes. BlobSink pairs an
// encoder with a storage.BlobStore and a key scheme; the local file outputs
// and the object-store upload are both BlobSinks. TableSink appends rows to
// an embedded SQLite or a Postgres table.
package sink
