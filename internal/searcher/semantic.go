package searcher

import (
	"context"

	"github.com/ragline/ragline/internal/embed"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
)

// SemanticSearcher returns ANN neighbors from the vector index. The
// request must carry either a precomputed vector or query text with a
// configured embedder.
type SemanticSearcher struct {
	vector   *indexer.VectorIndexer
	embedder embed.Embedder
}

var _ Searcher = (*SemanticSearcher)(nil)

// NewSemanticSearcher creates a semantic searcher. The embedder may be
// nil when callers always supply precomputed vectors.
func NewSemanticSearcher(vector *indexer.VectorIndexer, embedder embed.Embedder) *SemanticSearcher {
	return &SemanticSearcher{vector: vector, embedder: embedder}
}

func (s *SemanticSearcher) Search(ctx context.Context, req Request) ([]Result, error) {
	if err := validateRequest(req, req.Vector == nil); err != nil {
		return nil, err
	}
	if req.TopK == 0 {
		return []Result{}, nil
	}

	vector := req.Vector
	if vector == nil {
		if s.embedder == nil {
			return nil, errors.Validation(errors.ErrCodeConfigInvalid,
				"semantic search needs a query vector or an embedder")
		}
		var err error
		vector, err = s.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, err
		}
	}

	hits, err := s.vector.Search(ctx, req.Collection, vector, req.TopK)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout(errors.ErrCodeSearchTimeout, "semantic search", err)
		}
		return nil, err
	}

	metric := s.vector.Metric(req.Collection)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    distanceToScore(hit.Distance, metric),
			Metadata: hit.Metadata,
		})
	}
	return results, nil
}

// distanceToScore maps a metric-specific distance to a higher-is-better
// score. Cosine distance inverts directly; L2 decays; inner product is
// the raw (negated-back) dot product, assumed already in [0, 1].
func distanceToScore(distance float32, metric string) float64 {
	d := float64(distance)
	switch metric {
	case indexer.MetricL2:
		return 1.0 / (1.0 + d)
	case indexer.MetricIP:
		return -d
	default: // cosine
		score := 1.0 - d
		if score < 0 {
			return 0
		}
		return score
	}
}
