package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/errors"
)

// CreateKB inserts a knowledge base, assigning an id when empty.
func (s *Store) CreateKB(ctx context.Context, kb *KnowledgeBase) error {
	if kb.ID == "" {
		kb.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	kb.CreatedAt = now
	kb.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases (id, tenant_id, name, defaults_json, document_count, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.TenantID, kb.Name, jsonText(kb.Defaults),
		kb.DocumentCount, kb.ChunkCount, timeText(now), timeText(now))
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "create knowledge base", err)
	}
	return nil
}

// GetKB loads a knowledge base by id.
func (s *Store) GetKB(ctx context.Context, id string) (*KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, defaults_json, document_count, chunk_count, created_at, updated_at
		FROM knowledge_bases WHERE id = ?`, id)

	var kb KnowledgeBase
	var defaults, created, updated string
	err := row.Scan(&kb.ID, &kb.TenantID, &kb.Name, &defaults,
		&kb.DocumentCount, &kb.ChunkCount, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.ErrCodeKBNotFound, "knowledge base", id)
	}
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "load knowledge base", err)
	}
	kb.Defaults = parseJSON(defaults)
	kb.CreatedAt = parseTime(created)
	kb.UpdatedAt = parseTime(updated)
	return &kb, nil
}

// EnsureKB creates the knowledge base when it does not exist yet.
func (s *Store) EnsureKB(ctx context.Context, id, tenantID, name string) (*KnowledgeBase, error) {
	kb, err := s.GetKB(ctx, id)
	if err == nil {
		return kb, nil
	}
	if !errors.IsKind(err, errors.KindNotFound) {
		return nil, err
	}
	kb = &KnowledgeBase{ID: id, TenantID: tenantID, Name: name}
	if err := s.CreateKB(ctx, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

// AddKBCounters adjusts the aggregate document and chunk counters.
func (s *Store) AddKBCounters(ctx context.Context, id string, docDelta, chunkDelta int) error {
	return s.addKBCounters(ctx, s.db, id, docDelta, chunkDelta)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) addKBCounters(ctx context.Context, db execer, id string, docDelta, chunkDelta int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE knowledge_bases
		SET document_count = document_count + ?, chunk_count = chunk_count + ?, updated_at = ?
		WHERE id = ?`,
		docDelta, chunkDelta, timeText(time.Now()), id)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "update knowledge base counters", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.ErrCodeKBNotFound, "knowledge base", id)
	}
	return nil
}

// DeleteKB removes an empty knowledge base. A knowledge base that
// still owns documents is rejected.
func (s *Store) DeleteKB(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var docs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE kb_id = ?`, id).Scan(&docs); err != nil {
			return errors.Backend(errors.ErrCodeMetadataBackend, "count documents", err)
		}
		if docs > 0 {
			return errors.Validation(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("knowledge base %q still owns %d documents", id, docs))
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE id = ?`, id)
		if err != nil {
			return errors.Backend(errors.ErrCodeMetadataBackend, "delete knowledge base", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.ErrCodeKBNotFound, "knowledge base", id)
		}
		return nil
	})
}
