package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/errors"
)

const chunkColumns = `id, document_id, content, content_hash, chunk_index,
	start_char, end_char, embedding_model, vector_id, text_id, metadata_json, created_at`

// CommitIndexed atomically persists a document's chunks and marks it
// indexed. Chunk rows are committed in the same transaction as the
// status transition, so a crash never leaves an indexed document
// without its chunks.
func (s *Store) CommitIndexed(ctx context.Context, doc *Document, chunks []Chunk) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range chunks {
			if err := insertChunk(ctx, tx, &chunks[i], now); err != nil {
				return err
			}
		}

		doc.Status = StatusIndexed
		doc.ChunkCount = len(chunks)
		doc.Error = ""
		doc.ProcessedAt = &now
		doc.UpdatedAt = now
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET status = ?, chunk_count = ?, error = '', processed_at = ?, updated_at = ?
			WHERE id = ?`,
			StatusIndexed, len(chunks), timeText(now), timeText(now), doc.ID)
		if err != nil {
			return errors.Backend(errors.ErrCodeMetadataBackend, "mark document indexed", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.ErrCodeDocumentNotFound, "document", doc.ID)
		}

		return s.addKBCounters(ctx, tx, doc.KBID, 0, len(chunks))
	})
}

// SaveChunks inserts chunk rows outside an indexing transaction.
func (s *Store) SaveChunks(ctx context.Context, chunks []Chunk) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range chunks {
			if err := insertChunk(ctx, tx, &chunks[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertChunk(ctx context.Context, tx *sql.Tx, c *Chunk, now time.Time) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.Content, c.ContentHash, c.ChunkIndex,
		nullInt(c.StartChar), nullInt(c.EndChar), c.EmbeddingModel,
		c.VectorID, c.TextID, jsonText(c.Metadata), timeText(now))
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "insert chunk", err)
	}
	return nil
}

// GetChunksByVectorID batch-loads chunks keyed by their vector-store
// id. Missing ids are simply absent from the map.
func (s *Store) GetChunksByVectorID(ctx context.Context, vectorIDs []string) (map[string]Chunk, error) {
	if len(vectorIDs) == 0 {
		return map[string]Chunk{}, nil
	}

	placeholders := strings.Repeat("?, ", len(vectorIDs)-1) + "?"
	args := make([]any, len(vectorIDs))
	for i, id := range vectorIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE vector_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "batch-load chunks", err)
	}
	defer rows.Close()

	chunks := make(map[string]Chunk, len(vectorIDs))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeMetadataBackend, "scan chunk", err)
		}
		chunks[c.VectorID] = *c
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "iterate chunks", err)
	}
	return chunks, nil
}

// GetDocuments batch-loads documents by id.
func (s *Store) GetDocuments(ctx context.Context, ids []string) (map[string]Document, error) {
	if len(ids) == 0 {
		return map[string]Document{}, nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "batch-load documents", err)
	}
	defer rows.Close()

	docs := make(map[string]Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeMetadataBackend, "scan document", err)
		}
		docs[doc.ID] = *doc
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "iterate documents", err)
	}
	return docs, nil
}

// ChunksByDocument returns a document's chunks in index order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`,
		documentID)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "load document chunks", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeMetadataBackend, "scan chunk", err)
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "iterate chunks", err)
	}
	return chunks, nil
}

// DeleteChunksByDocument removes a document's chunk rows, returning
// how many were deleted.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, errors.Backend(errors.ErrCodeMetadataBackend, "delete document chunks", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var start, end sql.NullInt64
	var metadata, created string
	err := row.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ContentHash, &c.ChunkIndex,
		&start, &end, &c.EmbeddingModel, &c.VectorID, &c.TextID, &metadata, &created)
	if err != nil {
		return nil, err
	}
	c.StartChar = parseNullInt(start)
	c.EndChar = parseNullInt(end)
	c.Metadata = parseJSON(metadata)
	c.CreatedAt = parseTime(created)
	return &c, nil
}
