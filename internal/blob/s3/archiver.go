package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// BetArchiveStore provides read access to terminal bet records for archival.
// The Postgres bet store satisfies it.
type BetArchiveStore interface {
	// ListBefore returns terminal bet attempts settled or failed strictly
	// before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.BetAttempt, error)
}

// BetArchiver implements domain.Archiver by querying terminal ledger records,
// serializing them to JSONL, and uploading the result to object storage. The
// upload is verified with a HeadObject before the archival is recorded in the
// audit log.
//
// Deletion of the archived records from the primary store is intentionally
// not performed here; that is a separate, explicit step after verification.
type BetArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	bets   BetArchiveStore
	audit  domain.AuditStore
}

// NewBetArchiver creates a BetArchiver.
func NewBetArchiver(writer domain.BlobWriter, reader domain.BlobReader, bets BetArchiveStore, audit domain.AuditStore) *BetArchiver {
	return &BetArchiver{
		writer: writer,
		reader: reader,
		bets:   bets,
		audit:  audit,
	}
}

// ArchiveBets queries all terminal bets before the cutoff, serializes them
// to JSONL, and uploads the file at archive/bets/YYYY-MM.jsonl. It returns
// the count of archived records.
func (a *BetArchiver) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	bets, err := a.bets.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets verify: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("s3blob: archive bets verify: object %s missing after upload", path)
	}

	count := int64(len(bets))

	if err := a.audit.Log(ctx, "archive.bets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive bets audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/bets/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
