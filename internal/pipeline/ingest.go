package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/component"
	"github.com/ragline/ragline/internal/embed"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/parser"
	"github.com/ragline/ragline/internal/store"
)

// IngestionConfig is the declarative pipeline for one ingestion run.
type IngestionConfig struct {
	Parser   ComponentConfig `json:"parser"`
	Chunker  ComponentConfig `json:"chunker"`
	Embedder ComponentConfig `json:"embedder"`
	Indexer  ComponentConfig `json:"indexer"`
}

// DocumentInput is one document to ingest.
type DocumentInput struct {
	StorageURI string         `json:"storage_uri"`
	Filename   string         `json:"filename"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Document statuses reported per input, beyond the store statuses.
const StatusSkipped = "skipped"

// DocumentResult is the per-document outcome, in input order.
type DocumentResult struct {
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	RunID     string           `json:"run_id"`
	Documents []DocumentResult `json:"documents"`
	Indexed   int              `json:"indexed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
}

// ingestComponents are the four instances resolved from the registry
// for one run.
type ingestComponents struct {
	parser     parser.Parser
	chunker    chunker.Chunker
	embedder   embed.Embedder
	collection string
}

// Ingest runs the ingestion pipeline over a batch of documents.
// Documents are processed sequentially; one document's failure never
// aborts the batch. The pipeline run is always finalized.
func (o *Orchestrator) Ingest(ctx context.Context, tenantID, kbID string, inputs []DocumentInput, cfg IngestionConfig) (*IngestResult, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Internal("acquire orchestrator slot", err)
	}
	defer o.sem.Release(1)

	start := time.Now()
	log := o.deps.Logger.With("tenant", tenantID, "kb", kbID)

	if _, err := o.deps.Store.EnsureKB(ctx, kbID, tenantID, kbID); err != nil {
		return nil, err
	}

	run := &store.PipelineRun{
		TenantID: tenantID,
		KBID:     kbID,
		Type:     store.RunTypeIngestion,
		Status:   store.RunRunning,
		Config:   asMap(cfg),
	}
	if err := o.deps.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	comps, err := o.buildIngestComponents(ctx, tenantID, kbID, cfg)
	if err != nil {
		o.finalizeFailed(run.ID, err)
		return nil, err
	}

	result := &IngestResult{RunID: run.ID}
	cancelled := false
	for _, input := range inputs {
		if ctx.Err() != nil {
			cancelled = true
			result.Skipped++
			result.Documents = append(result.Documents, DocumentResult{
				Filename: input.Filename,
				Status:   StatusSkipped,
				Error:    "cancelled",
			})
			continue
		}

		docResult := o.ingestDocument(ctx, tenantID, kbID, input, cfg, comps)
		result.Documents = append(result.Documents, docResult)
		switch docResult.Status {
		case store.StatusIndexed:
			result.Indexed++
		default:
			result.Failed++
			log.Warn("document ingestion failed",
				"filename", input.Filename, "error", docResult.Error)
		}
	}

	metrics := map[string]any{
		"duration_ms":       msSince(start),
		"documents_total":   len(inputs),
		"documents_indexed": result.Indexed,
		"documents_failed":  result.Failed,
		"documents_skipped": result.Skipped,
	}
	summary := asMap(result)
	if cancelled {
		o.finalize(run.ID, store.RunFailed, summary, metrics, "cancelled")
	} else {
		o.finalize(run.ID, store.RunCompleted, summary, metrics, "")
	}

	log.Info("ingestion run finished",
		"run", run.ID, "indexed", result.Indexed, "failed", result.Failed,
		"cancelled", cancelled)
	return result, nil
}

func (o *Orchestrator) buildIngestComponents(ctx context.Context, tenantID, kbID string, cfg IngestionConfig) (*ingestComponents, error) {
	reg := o.deps.Registry

	embedder, err := o.embedderFor(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	parserAny, err := reg.Create(component.CategoryParser,
		typeOr(cfg.Parser.Type, "auto"), cfg.Parser.Params, component.Deps{})
	if err != nil {
		return nil, err
	}

	chunkerAny, err := reg.Create(component.CategoryChunker,
		typeOr(cfg.Chunker.Type, "recursive"), cfg.Chunker.Params,
		component.Deps{Embedder: embedder})
	if err != nil {
		return nil, err
	}

	// The indexer config carries collection routing; the index
	// instances themselves are shared infrastructure.
	params := cfg.Indexer.Params
	collection := indexer.LogicalCollection(tenantID, kbID)
	if explicit, ok := params["collection_name"].(string); ok && explicit != "" {
		collection = explicit
	}
	dimension := embedder.Dimensions()
	if v, ok := params["dimension"]; ok {
		if d := toInt(v); d > 0 {
			dimension = d
		}
	}
	indexType, _ := params["index_type"].(string)
	metric, _ := params["metric_type"].(string)
	if metric == "" {
		metric = indexer.MetricCosine
	}

	if err := o.deps.Vector.EnsureCollection(ctx, collection, dimension, indexType, metric); err != nil {
		return nil, err
	}
	if err := o.deps.Text.EnsureCollection(ctx, collection, 0, "", ""); err != nil {
		return nil, err
	}

	return &ingestComponents{
		parser:     parserAny.(parser.Parser),
		chunker:    chunkerAny.(chunker.Chunker),
		embedder:   embedder,
		collection: collection,
	}, nil
}

// ingestDocument walks one document through download, dedup, parse,
// chunk, embed, index, and commit. Failures after the document record
// exists mark it failed; earlier failures only surface in the result.
func (o *Orchestrator) ingestDocument(ctx context.Context, tenantID, kbID string, input DocumentInput, cfg IngestionConfig, comps *ingestComponents) DocumentResult {
	failed := func(docID, msg string) DocumentResult {
		if docID != "" {
			if err := o.deps.Store.SetDocumentStatus(ctx, docID, store.StatusFailed, msg); err != nil {
				o.deps.Logger.Warn("mark document failed", "document", docID, "error", err)
			}
		}
		return DocumentResult{
			DocumentID: docID,
			Filename:   input.Filename,
			Status:     store.StatusFailed,
			Error:      msg,
		}
	}

	data, err := o.deps.Blob.Get(ctx, input.StorageURI)
	if err != nil {
		return failed("", err.Error())
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	existing, err := o.deps.Store.FindDocumentByChecksum(ctx, kbID, checksum)
	if err != nil {
		return failed("", err.Error())
	}
	if existing != nil {
		dup := errors.Duplicate(existing.ID, existing.SourceType == store.SourceSSOT)
		return failed("", dup.Error())
	}

	doc := &store.Document{
		KBID:       kbID,
		TenantID:   tenantID,
		Filename:   input.Filename,
		FileType:   strings.TrimPrefix(filepath.Ext(input.Filename), "."),
		Size:       int64(len(data)),
		SourceType: store.SourceUpload,
		Status:     store.StatusProcessing,
		Version:    1,
		Checksum:   checksum,
		Metadata:   input.Metadata,
	}
	if err := o.deps.Store.CreateDocument(ctx, doc); err != nil {
		return failed("", err.Error())
	}
	if err := o.deps.Store.AddKBCounters(ctx, kbID, 1, 0); err != nil {
		return failed(doc.ID, err.Error())
	}

	// Versioned managed copy: old bytes stay addressable across
	// versions.
	managedURI := blob.FormatURI(o.opts.ManagedBucket,
		blob.ManagedPath(tenantID, kbID, doc.ID, doc.Version, input.Filename))
	if err := o.deps.Blob.Put(ctx, managedURI, data, ""); err != nil {
		return failed(doc.ID, err.Error())
	}
	doc.StorageURI = managedURI
	if err := o.deps.Store.UpdateDocument(ctx, doc); err != nil {
		return failed(doc.ID, err.Error())
	}

	parsed, err := comps.parser.Parse(ctx, data, input.Filename)
	if err != nil {
		return failed(doc.ID, err.Error())
	}

	chunks, err := comps.chunker.Chunk(ctx, parsed.Content)
	if err != nil {
		return failed(doc.ID, err.Error())
	}
	if len(chunks) == 0 {
		if err := o.deps.Store.CommitIndexed(ctx, doc, nil); err != nil {
			return failed(doc.ID, err.Error())
		}
		return DocumentResult{DocumentID: doc.ID, Filename: input.Filename, Status: store.StatusIndexed}
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	embedCtx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
	vectors, err := comps.embedder.EmbedBatch(embedCtx, contents)
	cancel()
	if err != nil {
		return failed(doc.ID, err.Error())
	}
	if len(vectors) != len(chunks) {
		return failed(doc.ID, fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	records := make([]indexer.Record, len(chunks))
	rows := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()

		meta := map[string]any{
			"document_id": doc.ID,
			"filename":    input.Filename,
			"chunk_index": c.Index,
		}
		for k, v := range parsed.Metadata {
			meta[k] = v
		}
		records[i] = indexer.Record{ID: id, Content: c.Content, Vector: vectors[i], Metadata: meta}

		contentSum := sha256.Sum256([]byte(c.Content))
		rows[i] = store.Chunk{
			ID:             id,
			DocumentID:     doc.ID,
			Content:        c.Content,
			ContentHash:    hex.EncodeToString(contentSum[:]),
			ChunkIndex:     c.Index,
			StartChar:      offsetPtr(c.StartChar),
			EndChar:        offsetPtr(c.EndChar),
			EmbeddingModel: comps.embedder.ModelName(),
			VectorID:       id,
			TextID:         id,
			Metadata:       c.Metadata,
		}
	}

	if err := o.deps.Vector.Index(ctx, comps.collection, records); err != nil {
		return failed(doc.ID, err.Error())
	}
	if err := o.deps.Text.Index(ctx, comps.collection, records); err != nil {
		return failed(doc.ID, err.Error())
	}

	if err := o.deps.Store.CommitIndexed(ctx, doc, rows); err != nil {
		return failed(doc.ID, err.Error())
	}

	return DocumentResult{
		DocumentID: doc.ID,
		Filename:   input.Filename,
		Status:     store.StatusIndexed,
		ChunkCount: len(chunks),
	}
}

func (o *Orchestrator) finalize(runID, status string, result, metrics map[string]any, errText string) {
	// Finalization must not depend on the (possibly cancelled) request
	// context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Store.FinalizeRun(ctx, runID, status, result, metrics, errText); err != nil {
		o.deps.Logger.Error("finalize pipeline run", "run", runID, "error", err)
	}
}

func (o *Orchestrator) finalizeFailed(runID string, cause error) {
	o.finalize(runID, store.RunFailed, nil, nil, cause.Error())
}

func offsetPtr(offset int) *int {
	if offset < 0 {
		return nil
	}
	return &offset
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
