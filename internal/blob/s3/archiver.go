package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// ActivityArchiveStore provides the read access the archiver needs. The
// Postgres ActivityStore satisfies it through its ListBefore method.
type ActivityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Activity, error)
}

// ArchiveImpl implements domain.Archiver by querying the activity store for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer     domain.BlobWriter
	activities ActivityArchiveStore
	audit      domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, activities ActivityArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		activities: activities,
		audit:      audit,
	}
}

// ArchiveActivities queries all activity rows before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/activity/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the uploaded path is
// returned. An empty path means there was nothing to archive.
func (a *ArchiveImpl) ArchiveActivities(ctx context.Context, before time.Time) (string, error) {
	records, err := a.activities.ListBefore(ctx, before)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive activity query: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive activity marshal: %w", err)
	}

	path := archivePath("activity", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive activity upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.activity", map[string]any{
		"path":   path,
		"count":  len(records),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive activity audit log: %w", err)
	}

	return path, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/activity/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
