package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/component"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/optimizer"
	"github.com/ragline/ragline/internal/searcher"
	"github.com/ragline/ragline/internal/store"
)

// RetrievalConfig is the declarative pipeline for one query.
type RetrievalConfig struct {
	Embedder   ComponentConfig   `json:"embedder"`
	Searcher   ComponentConfig   `json:"searcher"`
	Optimizers []ComponentConfig `json:"optimizers,omitempty"`
}

// RetrievedResult is one enriched query hit. ID and Score are always
// present; enrichment fields are best-effort when metadata rows are
// missing.
type RetrievedResult struct {
	ID               string         `json:"id"`
	Content          string         `json:"content"`
	Score            float64        `json:"score"`
	DocumentID       string         `json:"document_id,omitempty"`
	DocumentFilename string         `json:"document_filename,omitempty"`
	ChunkIndex       int            `json:"chunk_index"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// QueryResult is the retrieval result envelope.
type QueryResult struct {
	RunID        string            `json:"run_id"`
	Query        string            `json:"query"`
	Results      []RetrievedResult `json:"results"`
	TotalResults int               `json:"total_results"`
	Metrics      map[string]any    `json:"metrics"`
}

// Retrieve runs the retrieval pipeline: embed once, search, optimize,
// truncate, enrich. The pipeline run is always finalized.
func (o *Orchestrator) Retrieve(ctx context.Context, tenantID, kbID, query string, topK int, cfg RetrievalConfig) (*QueryResult, error) {
	if topK < 0 {
		return nil, errors.Validation(errors.ErrCodeTopKRange,
			fmt.Sprintf("top_k must be non-negative, got %d", topK))
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.Validation(errors.ErrCodeQueryEmpty, "query must not be empty")
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Internal("acquire orchestrator slot", err)
	}
	defer o.sem.Release(1)

	start := time.Now()
	log := o.deps.Logger.With("tenant", tenantID, "kb", kbID)

	run := &store.PipelineRun{
		TenantID: tenantID,
		KBID:     kbID,
		Type:     store.RunTypeRetrieval,
		Status:   store.RunRunning,
		Config:   asMap(cfg),
	}
	if err := o.deps.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	metrics := map[string]any{
		"embed_time_ms":    0.0,
		"search_time_ms":   0.0,
		"optimize_time_ms": 0.0,
	}
	finish := func(results []RetrievedResult) *QueryResult {
		metrics["duration_ms"] = msSince(start)
		metrics["results_count"] = len(results)
		o.finalize(run.ID, store.RunCompleted,
			map[string]any{"results_count": len(results)}, metrics, "")
		return &QueryResult{
			RunID:        run.ID,
			Query:        query,
			Results:      results,
			TotalResults: len(results),
			Metrics:      metrics,
		}
	}

	embedder, err := o.embedderFor(cfg.Embedder)
	if err != nil {
		o.finalizeFailed(run.ID, err)
		return nil, err
	}

	searcherType := typeOr(cfg.Searcher.Type, "hybrid")
	searcherAny, err := o.deps.Registry.Create(component.CategorySearcher,
		searcherType, cfg.Searcher.Params,
		component.Deps{Vector: o.deps.Vector, Text: o.deps.Text, Embedder: embedder})
	if err != nil {
		o.finalizeFailed(run.ID, err)
		return nil, err
	}
	search := searcherAny.(searcher.Searcher)

	if topK == 0 {
		return finish([]RetrievedResult{}), nil
	}

	// Reattach persisted collections after a restart. Searching an
	// index this process never wrote is otherwise a not-found error.
	collection := indexer.LogicalCollection(tenantID, kbID)
	if searcherType != "lexical" {
		if err := o.deps.Vector.EnsureCollection(ctx, collection, embedder.Dimensions(), "", indexer.MetricCosine); err != nil {
			o.finalizeFailed(run.ID, err)
			return nil, err
		}
	}
	if searcherType != "semantic" {
		if err := o.deps.Text.EnsureCollection(ctx, collection, 0, "", ""); err != nil {
			o.finalizeFailed(run.ID, err)
			return nil, err
		}
	}

	// Embed the query once; lexical search never needs the vector.
	var queryVector []float32
	if searcherType != "lexical" {
		embedStart := time.Now()
		embedCtx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
		queryVector, err = embedder.Embed(embedCtx, query)
		cancel()
		metrics["embed_time_ms"] = msSince(embedStart)
		if err != nil {
			o.finalizeFailed(run.ID, err)
			return nil, err
		}
	}

	fetchK := topK
	if len(cfg.Optimizers) > 0 {
		fetchK = topK * o.opts.FetchMultiplier
	}
	metrics["fetch_k"] = fetchK

	searchStart := time.Now()
	searchCtx, cancel := context.WithTimeout(ctx, o.opts.SearchTimeout)
	results, searchErr := search.Search(searchCtx, searcher.Request{
		Collection: collection,
		Query:      query,
		TopK:       fetchK,
		Vector:     queryVector,
	})
	cancel()
	metrics["search_time_ms"] = msSince(searchStart)

	if searchErr != nil {
		if len(results) == 0 {
			o.finalizeFailed(run.ID, searchErr)
			return nil, searchErr
		}
		// One hybrid side failed; the other side's results are usable.
		metrics["search_error"] = searchErr.Error()
		log.Warn("partial search failure", "run", run.ID, "error", searchErr)
	}

	if len(cfg.Optimizers) > 0 {
		chain, err := o.buildOptimizers(cfg.Optimizers)
		if err != nil {
			o.finalizeFailed(run.ID, err)
			return nil, err
		}
		optimizeStart := time.Now()
		results, err = chain.Optimize(ctx, results, query)
		metrics["optimize_time_ms"] = msSince(optimizeStart)
		if err != nil {
			o.finalizeFailed(run.ID, err)
			return nil, err
		}
	}

	if len(results) > topK {
		results = results[:topK]
	}

	enriched := o.enrich(ctx, results)
	return finish(enriched), nil
}

func (o *Orchestrator) buildOptimizers(configs []ComponentConfig) (optimizer.Chain, error) {
	chain := make(optimizer.Chain, 0, len(configs))
	for _, cfg := range configs {
		instance, err := o.deps.Registry.Create(component.CategoryOptimizer,
			cfg.Type, cfg.Params, component.Deps{})
		if err != nil {
			return nil, err
		}
		chain = append(chain, instance.(optimizer.Optimizer))
	}
	return chain, nil
}

// enrich merges search hits with their chunk and document rows.
// Missing rows degrade to the bare hit; id and score are always
// present.
func (o *Orchestrator) enrich(ctx context.Context, results []searcher.Result) []RetrievedResult {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}

	chunks, err := o.deps.Store.GetChunksByVectorID(ctx, ids)
	if err != nil {
		o.deps.Logger.Warn("chunk enrichment failed", "error", err)
		chunks = nil
	}

	docIDs := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			docIDs = append(docIDs, c.DocumentID)
		}
	}
	docs := map[string]store.Document{}
	if len(docIDs) > 0 {
		docs, err = o.deps.Store.GetDocuments(ctx, docIDs)
		if err != nil {
			o.deps.Logger.Warn("document enrichment failed", "error", err)
			docs = map[string]store.Document{}
		}
	}

	enriched := make([]RetrievedResult, len(results))
	for i, r := range results {
		out := RetrievedResult{
			ID:         r.ID,
			Content:    r.Content,
			Score:      r.Score,
			ChunkIndex: -1,
			Metadata:   r.Metadata,
		}
		if c, ok := chunks[r.ID]; ok {
			out.DocumentID = c.DocumentID
			out.ChunkIndex = c.ChunkIndex
			if len(c.Metadata) > 0 {
				merged := make(map[string]any, len(out.Metadata)+len(c.Metadata))
				for k, v := range c.Metadata {
					merged[k] = v
				}
				for k, v := range out.Metadata {
					merged[k] = v
				}
				out.Metadata = merged
			}
			if doc, ok := docs[c.DocumentID]; ok {
				out.DocumentFilename = doc.Filename
			}
		}
		enriched[i] = out
	}
	return enriched
}
