// Package store is the sqlite-backed metadata store: knowledge bases,
// documents, chunks, and pipeline runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/ragline/ragline/internal/errors"
)

// Document statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Document source types. The values sort so that ssot precedes
// user_upload, which makes the authoritative duplicate the first row
// under ORDER BY source_type.
const (
	SourceSSOT   = "ssot"
	SourceUpload = "user_upload"
)

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// KnowledgeBase is a tenant-owned container of documents.
type KnowledgeBase struct {
	ID            string
	TenantID      string
	Name          string
	Defaults      map[string]any
	DocumentCount int
	ChunkCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Document is one ingested file at its current version.
type Document struct {
	ID          string
	KBID        string
	TenantID    string
	Filename    string
	FileType    string
	Size        int64
	StorageURI  string
	SourceType  string
	Status      string
	Version     int
	Checksum    string
	ChunkCount  int
	Error       string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// Chunk is one indexed fragment of a document.
type Chunk struct {
	ID             string
	DocumentID     string
	Content        string
	ContentHash    string
	ChunkIndex     int
	StartChar      *int
	EndChar        *int
	EmbeddingModel string
	VectorID       string
	TextID         string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// PipelineRun is the audit record of one orchestrator invocation.
type PipelineRun struct {
	ID          string
	TenantID    string
	KBID        string
	Type        string
	Config      map[string]any
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       string
	Metrics     map[string]any
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_bases (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	defaults_json  TEXT NOT NULL DEFAULT '{}',
	document_count INTEGER NOT NULL DEFAULT 0,
	chunk_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	kb_id         TEXT NOT NULL REFERENCES knowledge_bases(id),
	tenant_id     TEXT NOT NULL,
	filename      TEXT NOT NULL,
	file_type     TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	storage_uri   TEXT NOT NULL DEFAULT '',
	source_type   TEXT NOT NULL DEFAULT 'user_upload',
	status        TEXT NOT NULL DEFAULT 'pending',
	version       INTEGER NOT NULL DEFAULT 1,
	checksum      TEXT NOT NULL DEFAULT '',
	chunk_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	processed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_kb_checksum ON documents(kb_id, checksum);
CREATE INDEX IF NOT EXISTS idx_documents_kb_source ON documents(kb_id, source_type);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	content         TEXT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	chunk_index     INTEGER NOT NULL,
	start_char      INTEGER,
	end_char        INTEGER,
	embedding_model TEXT NOT NULL DEFAULT '',
	vector_id       TEXT NOT NULL DEFAULT '',
	text_id         TEXT NOT NULL DEFAULT '',
	metadata_json   TEXT NOT NULL DEFAULT '{}',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	kb_id        TEXT NOT NULL,
	type         TEXT NOT NULL,
	config_json  TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'pending',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	result_json  TEXT NOT NULL DEFAULT '{}',
	error        TEXT NOT NULL DEFAULT '',
	metrics_json TEXT NOT NULL DEFAULT '{}'
);
`

// Open opens (and migrates) the metadata database. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "open metadata database", err)
	}

	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent orchestrators.
	db.SetMaxOpenConns(1)

	// WAL must be set via PRAGMA, DSN params may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Backend(errors.ErrCodeMetadataBackend,
				fmt.Sprintf("apply %s", pragma), err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "migrate schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "commit transaction", err)
	}
	return nil
}

// Time and JSON column codecs. Timestamps persist as RFC 3339 text so
// rows stay readable with the sqlite CLI.

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullTimeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func jsonText(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(payload)
}

func parseJSON(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func parseNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
