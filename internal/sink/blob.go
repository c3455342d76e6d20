package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/storage"
)

// DefaultBaseName is the stem of every file the job writes.
const DefaultBaseName = "all_beach_daily_data"

// KeyFunc picks the object path for one write.
type KeyFunc func(enc Encoder) string

// TimestampedKey names each write <base>_<timestamp><ext> so daily files accumulate.
func TimestampedKey(base string, now func() time.Time) KeyFunc {
	if now == nil {
		now = time.Now
	}
	return func(enc Encoder) string {
		return base + "_" + now().Format(beach.TimestampLayout) + enc.Extension()
	}
}

// FixedKey names every write <base><ext>; each run overwrites the last.
func FixedKey(base string) KeyFunc {
	return func(enc Encoder) string {
		return base + enc.Extension()
	}
}

// ExactKey uses key verbatim for every write.
func ExactKey(key string) KeyFunc {
	return func(Encoder) string {
		return key
	}
}

// BlobSink encodes a table and uploads it to a BlobStore.
type BlobSink struct {
	name    string
	store   storage.BlobStore
	encoder Encoder
	key     KeyFunc
}

// NewBlobSink builds a sink. An empty name falls back to the encoder format.
func NewBlobSink(name string, store storage.BlobStore, enc Encoder, key KeyFunc) (*BlobSink, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if enc == nil {
		return nil, errors.New("encoder is required")
	}
	if key == nil {
		key = FixedKey(DefaultBaseName)
	}
	if name == "" {
		name = enc.Format()
	}
	return &BlobSink{name: name, store: store, encoder: enc, key: key}, nil
}

// Name implements crawler.Sink.
func (s *BlobSink) Name() string { return s.name }

// Persist implements crawler.Sink and returns the object URI.
func (s *BlobSink) Persist(ctx context.Context, table *beach.Table) (string, error) {
	path := s.key(s.encoder)
	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, table); err != nil {
		return path, fmt.Errorf("encode %s: %w", s.encoder.Format(), err)
	}
	uri, err := s.store.PutObject(ctx, path, s.encoder.ContentType(), &buf)
	if err != nil {
		return path, fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}
