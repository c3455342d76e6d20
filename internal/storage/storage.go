// Package storage defines the blob store contract shared by the object-store
// backends (GCS, S3-compatible, local filesystem, in-memory) and the
// table-name check shared by the relational table stores.
package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
)

// BlobStore uploads a single object and returns its URI. Writing the same path
// twice overwrites the earlier object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTableName rejects table names that would need quoting.
func ValidateTableName(name string) error {
	if !validTableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
