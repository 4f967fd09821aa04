package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/ragline/ragline/internal/errors"
)

// TextConfig configures the bleve-backed text indexer.
type TextConfig struct {
	// DataDir persists indexes on disk. Empty keeps collections in memory.
	DataDir string
	// CollectionPrefix namespaces physical collection names per
	// deployment. Callers keep passing logical names.
	CollectionPrefix string
	// Analyzer is the bleve analyzer name. Empty uses bleve's default.
	Analyzer string
}

// TextHit is one lexical search hit with its raw BM25 score.
type TextHit struct {
	ID      string
	Content string
	Score   float64
}

// textDocument is the shape stored in bleve.
type textDocument struct {
	Content string `json:"content"`
}

// TextIndexer manages one bleve index per collection. Batches are
// atomic: bleve applies a batch as a unit.
type TextIndexer struct {
	mu          sync.RWMutex
	cfg         TextConfig
	collections map[string]bleve.Index
	closed      bool
}

var _ Indexer = (*TextIndexer)(nil)

// NewTextIndexer creates a text indexer.
func NewTextIndexer(cfg TextConfig) *TextIndexer {
	return &TextIndexer{
		cfg:         cfg,
		collections: make(map[string]bleve.Index),
	}
}

// EnsureCollection opens or creates the bleve index for a collection.
// Dimension and metric apply to vector collections and are ignored here.
func (t *TextIndexer) EnsureCollection(_ context.Context, name string, _ int, _ string, _ string) error {
	name = t.physical(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.Backend(errors.ErrCodeTextBackend, "text indexer is closed", nil)
	}
	if _, ok := t.collections[name]; ok {
		return nil
	}

	indexMapping := bleve.NewIndexMapping()
	if t.cfg.Analyzer != "" {
		indexMapping.DefaultAnalyzer = t.cfg.Analyzer
	}

	var idx bleve.Index
	var err error
	if t.cfg.DataDir == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		path := t.indexPath(name)
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return errors.Backend(errors.ErrCodeTextBackend,
			fmt.Sprintf("open collection %q", name), err)
	}
	t.collections[name] = idx
	return nil
}

// Index adds a batch of records. Vectors on records are ignored.
func (t *TextIndexer) Index(_ context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	idx, err := t.collection(collection)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, r := range records {
		if err := batch.Index(r.ID, textDocument{Content: r.Content}); err != nil {
			return errors.Backend(errors.ErrCodeTextBackend,
				fmt.Sprintf("batch record %s", r.ID), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return errors.Backend(errors.ErrCodeTextBackend, "apply batch", err)
	}
	return nil
}

// Search returns up to k hits for the query with raw BM25 scores.
// Callers normalize scores; an empty query matches nothing.
func (t *TextIndexer) Search(ctx context.Context, collection, query string, k int) ([]TextHit, error) {
	idx, err := t.collection(collection)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" || k <= 0 {
		return []TextHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	request := bleve.NewSearchRequest(matchQuery)
	request.Size = k
	request.Fields = []string{"content"}

	result, err := idx.SearchInContext(ctx, request)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout(errors.ErrCodeSearchTimeout, "text search", err)
		}
		return nil, errors.Backend(errors.ErrCodeTextBackend, "search", err)
	}

	hits := make([]TextHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		content, _ := hit.Fields["content"].(string)
		hits = append(hits, TextHit{ID: hit.ID, Content: content, Score: hit.Score})
	}
	return hits, nil
}

// Delete removes ids from the collection in one batch.
func (t *TextIndexer) Delete(_ context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := t.collection(collection)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return errors.Backend(errors.ErrCodeTextBackend, "apply delete batch", err)
	}
	return nil
}

// Exists reports whether the collection is known, checking disk when a
// data directory is configured.
func (t *TextIndexer) Exists(_ context.Context, collection string) (bool, error) {
	collection = t.physical(collection)
	t.mu.RLock()
	_, ok := t.collections[collection]
	t.mu.RUnlock()
	if ok {
		return true, nil
	}
	if t.cfg.DataDir == "" {
		return false, nil
	}
	_, err := os.Stat(t.indexPath(collection))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Backend(errors.ErrCodeTextBackend, "stat collection", err)
}

// Count reports documents in a collection.
func (t *TextIndexer) Count(collection string) (uint64, error) {
	idx, err := t.collection(collection)
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, errors.Backend(errors.ErrCodeTextBackend, "doc count", err)
	}
	return n, nil
}

// Close closes every open bleve index.
func (t *TextIndexer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true

	var firstErr error
	for name, idx := range t.collections {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close collection %q: %w", name, err)
		}
	}
	t.collections = make(map[string]bleve.Index)
	return firstErr
}

// collection resolves a logical name to its live bleve index.
func (t *TextIndexer) collection(name string) (bleve.Index, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, errors.Backend(errors.ErrCodeTextBackend, "text indexer is closed", nil)
	}
	idx, ok := t.collections[t.physical(name)]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeCollectionNotFound, "collection", name)
	}
	return idx, nil
}

func (t *TextIndexer) physical(name string) string {
	return CollectionName(t.cfg.CollectionPrefix, name)
}

func (t *TextIndexer) indexPath(name string) string {
	return filepath.Join(t.cfg.DataDir, name+".bleve")
}
