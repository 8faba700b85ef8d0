package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobReader reads back stored objects. The archiver uses Exists to verify
// an upload before the archived rows may be purged from the primary store.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports terminal ledger records to cold storage. Deletion from
// the primary store is a separate, explicit step after the archive has been
// verified.
type Archiver interface {
	ArchiveBets(ctx context.Context, before time.Time) (int64, error)
}
