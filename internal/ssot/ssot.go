// Package ssot synchronizes a knowledge base against an external
// single-source-of-truth bucket: new objects become pending ssot
// documents, changed objects bump the document version, and vanished
// objects are tombstoned. Documents are never hard-deleted here.
package ssot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"time"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/store"
)

// Sync strategies.
const (
	StrategyIncremental = "incremental"
	StrategyFull        = "full"
)

// Config describes one sync sweep.
type Config struct {
	SourceBucket string
	Prefix       string
	TenantID     string
	KBID         string
	// Strategy full re-checksums every object; incremental trusts
	// matching ETag and last-modified.
	Strategy string
	// FilePattern is a glob matched against object base names. Empty
	// matches everything.
	FilePattern string
	// ManagedBucket receives the versioned document copies.
	ManagedBucket string
}

// ObjectError is one object's failure during a sweep.
type ObjectError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SyncResult counts the sweep's classifications.
type SyncResult struct {
	RunID     string        `json:"run_id"`
	New       int           `json:"new"`
	Modified  int           `json:"modified"`
	Unchanged int           `json:"unchanged"`
	Deleted   int           `json:"deleted"`
	Errors    []ObjectError `json:"errors,omitempty"`
}

// Synchronizer performs SSOT sweeps.
type Synchronizer struct {
	store *store.Store
	blob  blob.Client
	log   *slog.Logger
}

// New creates a synchronizer.
func New(metaStore *store.Store, blobClient blob.Client, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{store: metaStore, blob: blobClient, log: logger}
}

// Sync enumerates the source bucket and reconciles the knowledge
// base's ssot documents against it. One object's failure never aborts
// the sweep; failures are collected on the result.
func (s *Synchronizer) Sync(ctx context.Context, cfg Config) (*SyncResult, error) {
	if cfg.SourceBucket == "" || cfg.TenantID == "" || cfg.KBID == "" {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			"ssot sync requires source bucket, tenant, and kb")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIncremental
	}
	if cfg.ManagedBucket == "" {
		cfg.ManagedBucket = "ragline"
	}

	if _, err := s.store.EnsureKB(ctx, cfg.KBID, cfg.TenantID, cfg.KBID); err != nil {
		return nil, err
	}

	start := time.Now()
	run := &store.PipelineRun{
		TenantID: cfg.TenantID,
		KBID:     cfg.KBID,
		Type:     store.RunTypeSync,
		Status:   store.RunRunning,
		Config: map[string]any{
			"source_bucket": cfg.SourceBucket,
			"prefix":        cfg.Prefix,
			"strategy":      cfg.Strategy,
			"file_pattern":  cfg.FilePattern,
		},
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	objects, err := s.blob.List(ctx, cfg.SourceBucket, cfg.Prefix)
	if err != nil {
		s.finalizeFailed(ctx, run.ID, err)
		return nil, err
	}

	existing, err := s.store.ListSSOTDocuments(ctx, cfg.KBID)
	if err != nil {
		s.finalizeFailed(ctx, run.ID, err)
		return nil, err
	}
	byPath := make(map[string]*store.Document, len(existing))
	for i := range existing {
		if p, ok := existing[i].Metadata["source_path"].(string); ok {
			byPath[p] = &existing[i]
		}
	}

	result := &SyncResult{RunID: run.ID}
	seen := make(map[string]bool, len(objects))
	for _, obj := range objects {
		if cfg.FilePattern != "" {
			if ok, _ := path.Match(cfg.FilePattern, path.Base(obj.Key)); !ok {
				continue
			}
		}
		seen[obj.Key] = true

		doc := byPath[obj.Key]
		var syncErr error
		switch {
		case doc == nil:
			syncErr = s.syncNew(ctx, cfg, obj, result)
		case s.sourceChanged(cfg, doc, obj):
			syncErr = s.syncModified(ctx, cfg, doc, obj, result)
		default:
			result.Unchanged++
		}
		if syncErr != nil {
			s.log.Warn("ssot object failed", "path", obj.Key, "error", syncErr)
			result.Errors = append(result.Errors, ObjectError{Path: obj.Key, Error: syncErr.Error()})
		}
	}

	// Tombstone documents whose source object vanished.
	for p, doc := range byPath {
		if seen[p] {
			continue
		}
		if tombstoned, _ := doc.Metadata["tombstone"].(bool); tombstoned {
			continue
		}
		doc.Metadata["tombstone"] = true
		doc.Status = store.StatusFailed
		doc.Error = "source object deleted"
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			result.Errors = append(result.Errors, ObjectError{Path: p, Error: err.Error()})
			continue
		}
		result.Deleted++
	}

	summary := map[string]any{
		"new":       result.New,
		"modified":  result.Modified,
		"unchanged": result.Unchanged,
		"deleted":   result.Deleted,
		"errors":    len(result.Errors),
	}
	metrics := map[string]any{
		"duration_ms":    float64(time.Since(start)) / float64(time.Millisecond),
		"objects_listed": len(objects),
	}
	if err := s.store.FinalizeRun(ctx, run.ID, store.RunCompleted, summary, metrics, ""); err != nil {
		s.log.Warn("finalize sync run failed", "run", run.ID, "error", err)
	}

	s.log.Info("ssot sweep finished",
		"kb", cfg.KBID, "new", result.New, "modified", result.Modified,
		"unchanged", result.Unchanged, "deleted", result.Deleted,
		"errors", len(result.Errors))
	return result, nil
}

func (s *Synchronizer) finalizeFailed(ctx context.Context, runID string, cause error) {
	if err := s.store.FinalizeRun(ctx, runID, store.RunFailed, nil, nil, cause.Error()); err != nil {
		s.log.Warn("finalize sync run failed", "run", runID, "error", err)
	}
}

// sourceChanged classifies an existing document against the live
// object. Strategy full always re-checksums.
func (s *Synchronizer) sourceChanged(cfg Config, doc *store.Document, obj blob.ObjectInfo) bool {
	if cfg.Strategy == StrategyFull {
		return true
	}
	etag, _ := doc.Metadata["source_etag"].(string)
	lastMod, _ := doc.Metadata["source_last_modified"].(string)
	return etag != obj.ETag || lastMod != obj.LastModified.UTC().Format(time.RFC3339)
}

func (s *Synchronizer) syncNew(ctx context.Context, cfg Config, obj blob.ObjectInfo, result *SyncResult) error {
	data, err := s.blob.Get(ctx, blob.FormatURI(cfg.SourceBucket, obj.Key))
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)

	doc := &store.Document{
		KBID:       cfg.KBID,
		TenantID:   cfg.TenantID,
		Filename:   path.Base(obj.Key),
		FileType:   fileType(obj.Key),
		Size:       int64(len(data)),
		SourceType: store.SourceSSOT,
		Status:     store.StatusPending,
		Version:    1,
		Checksum:   hex.EncodeToString(sum[:]),
		Metadata:   sourceMetadata(obj),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return err
	}
	if err := s.store.AddKBCounters(ctx, cfg.KBID, 1, 0); err != nil {
		return err
	}

	uri := blob.FormatURI(cfg.ManagedBucket,
		blob.ManagedPath(cfg.TenantID, cfg.KBID, doc.ID, 1, doc.Filename))
	if err := s.blob.Put(ctx, uri, data, ""); err != nil {
		return err
	}
	doc.StorageURI = uri
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	result.New++
	return nil
}

func (s *Synchronizer) syncModified(ctx context.Context, cfg Config, doc *store.Document, obj blob.ObjectInfo, result *SyncResult) error {
	data, err := s.blob.Get(ctx, blob.FormatURI(cfg.SourceBucket, obj.Key))
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	if checksum == doc.Checksum {
		// Same bytes behind a new ETag: refresh source metadata. A
		// tombstoned document whose object reappeared with identical
		// bytes is resurrected here, not only on a version bump.
		for k, v := range sourceMetadata(obj) {
			doc.Metadata[k] = v
		}
		if tombstoned, _ := doc.Metadata["tombstone"].(bool); tombstoned {
			delete(doc.Metadata, "tombstone")
			doc.Status = store.StatusPending
			doc.Error = ""
		}
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		result.Unchanged++
		return nil
	}

	previous := doc.Version
	doc.Version = previous + 1
	doc.Checksum = checksum
	doc.Size = int64(len(data))
	doc.Status = store.StatusPending
	doc.Error = ""
	for k, v := range sourceMetadata(obj) {
		doc.Metadata[k] = v
	}
	doc.Metadata["previous_version"] = previous
	delete(doc.Metadata, "tombstone")

	// Older bytes stay addressable under their own version path.
	uri := blob.FormatURI(cfg.ManagedBucket,
		blob.ManagedPath(cfg.TenantID, cfg.KBID, doc.ID, doc.Version, doc.Filename))
	if err := s.blob.Put(ctx, uri, data, ""); err != nil {
		return err
	}
	doc.StorageURI = uri
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	result.Modified++
	return nil
}

func sourceMetadata(obj blob.ObjectInfo) map[string]any {
	return map[string]any{
		"source_path":          obj.Key,
		"source_etag":          obj.ETag,
		"source_last_modified": obj.LastModified.UTC().Format(time.RFC3339),
	}
}

func fileType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
