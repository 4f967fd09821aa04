// Package searcher provides dense, lexical, and hybrid (RRF) search
// over a collection. Scores are normalized so higher is better and
// within-call comparable.
package searcher

import (
	"context"
	"strings"

	"github.com/ragline/ragline/internal/errors"
)

// Result is one search hit with a score in [0, 1].
type Result struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Request describes one search invocation. Vector optionally carries a
// precomputed query embedding so orchestrators embed the query once.
type Request struct {
	Collection string
	Query      string
	TopK       int
	Vector     []float32
}

// Searcher searches a collection.
type Searcher interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

// validateRequest enforces the shared request contract.
func validateRequest(req Request, needText bool) error {
	if req.TopK < 0 {
		return errors.Validation(errors.ErrCodeTopKRange, "top_k must be non-negative")
	}
	if needText && strings.TrimSpace(req.Query) == "" {
		return errors.Validation(errors.ErrCodeQueryEmpty, "query text is empty")
	}
	return nil
}
