package searcher

import (
	"context"

	"github.com/ragline/ragline/internal/indexer"
)

// LexicalSearcher returns BM25-ranked hits from the text index, with
// scores divided by the query's max so they land in [0, 1].
type LexicalSearcher struct {
	text *indexer.TextIndexer
}

var _ Searcher = (*LexicalSearcher)(nil)

// NewLexicalSearcher creates a lexical searcher.
func NewLexicalSearcher(text *indexer.TextIndexer) *LexicalSearcher {
	return &LexicalSearcher{text: text}
}

func (s *LexicalSearcher) Search(ctx context.Context, req Request) ([]Result, error) {
	if err := validateRequest(req, true); err != nil {
		return nil, err
	}
	if req.TopK == 0 {
		return []Result{}, nil
	}

	hits, err := s.text.Search(ctx, req.Collection, req.Query, req.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Result{}, nil
	}

	maxScore := hits[0].Score
	for _, hit := range hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		score := 0.0
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		results = append(results, Result{ID: hit.ID, Content: hit.Content, Score: score})
	}
	return results, nil
}
