package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/errors"
)

const documentColumns = `id, kb_id, tenant_id, filename, file_type, size, storage_uri,
	source_type, status, version, checksum, chunk_count, error, metadata_json,
	created_at, updated_at, processed_at`

// CreateDocument inserts a document, assigning an id and version 1
// defaults when unset.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.SourceType == "" {
		doc.SourceType = SourceUpload
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.KBID, doc.TenantID, doc.Filename, doc.FileType, doc.Size,
		doc.StorageURI, doc.SourceType, doc.Status, doc.Version, doc.Checksum,
		doc.ChunkCount, doc.Error, jsonText(doc.Metadata),
		timeText(now), timeText(now), nullTimeText(doc.ProcessedAt))
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "create document", err)
	}
	return nil
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.ErrCodeDocumentNotFound, "document", id)
	}
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "load document", err)
	}
	return doc, nil
}

// UpdateDocument persists every mutable document field.
func (s *Store) UpdateDocument(ctx context.Context, doc *Document) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			filename = ?, file_type = ?, size = ?, storage_uri = ?, source_type = ?,
			status = ?, version = ?, checksum = ?, chunk_count = ?, error = ?,
			metadata_json = ?, updated_at = ?, processed_at = ?
		WHERE id = ?`,
		doc.Filename, doc.FileType, doc.Size, doc.StorageURI, doc.SourceType,
		doc.Status, doc.Version, doc.Checksum, doc.ChunkCount, doc.Error,
		jsonText(doc.Metadata), timeText(doc.UpdatedAt), nullTimeText(doc.ProcessedAt),
		doc.ID)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "update document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.ErrCodeDocumentNotFound, "document", doc.ID)
	}
	return nil
}

// SetDocumentStatus transitions a document's status, recording the
// error text for failed documents.
func (s *Store) SetDocumentStatus(ctx context.Context, id, status, errText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errText, timeText(time.Now()), id)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "set document status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.ErrCodeDocumentNotFound, "document", id)
	}
	return nil
}

// FindDocumentByChecksum returns the authoritative duplicate for
// (kb, checksum), or nil when none exists. Ordering by source_type
// ascending puts ssot before user_upload.
func (s *Store) FindDocumentByChecksum(ctx context.Context, kbID, checksum string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE kb_id = ? AND checksum = ?
		ORDER BY source_type ASC LIMIT 1`, kbID, checksum)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "find document by checksum", err)
	}
	return doc, nil
}

// FindDocumentBySourcePath returns the ssot document registered for a
// source object path, or nil when none exists.
func (s *Store) FindDocumentBySourcePath(ctx context.Context, kbID, sourcePath string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE kb_id = ? AND source_type = ?
		  AND json_extract(metadata_json, '$.source_path') = ?
		LIMIT 1`, kbID, SourceSSOT, sourcePath)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "find document by source path", err)
	}
	return doc, nil
}

// ListSSOTDocuments returns every ssot document in the knowledge base.
func (s *Store) ListSSOTDocuments(ctx context.Context, kbID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE kb_id = ? AND source_type = ?
		ORDER BY created_at ASC`, kbID, SourceSSOT)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "list ssot documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeMetadataBackend, "scan ssot document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "iterate ssot documents", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and, via cascade, its chunks, then
// adjusts the knowledge base counters.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return errors.Backend(errors.ErrCodeMetadataBackend, "delete document", err)
		}
		return s.addKBCounters(ctx, tx, doc.KBID, -1, -doc.ChunkCount)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var metadata, created, updated string
	var processed sql.NullString
	err := row.Scan(&doc.ID, &doc.KBID, &doc.TenantID, &doc.Filename, &doc.FileType,
		&doc.Size, &doc.StorageURI, &doc.SourceType, &doc.Status, &doc.Version,
		&doc.Checksum, &doc.ChunkCount, &doc.Error, &metadata,
		&created, &updated, &processed)
	if err != nil {
		return nil, err
	}
	doc.Metadata = parseJSON(metadata)
	doc.CreatedAt = parseTime(created)
	doc.UpdatedAt = parseTime(updated)
	doc.ProcessedAt = parseNullTime(processed)
	return &doc, nil
}
