// Package optimizer post-processes search results: thresholding,
// capping, deduplication, and cross-encoder reranking, composable by
// sequencing.
package optimizer

import (
	"context"

	"github.com/ragline/ragline/internal/searcher"
)

// Optimizer transforms a result list. Optimizers never fabricate
// results; they filter, reorder, or rescore.
type Optimizer interface {
	Optimize(ctx context.Context, results []searcher.Result, query string) ([]searcher.Result, error)
}

// Chain applies optimizers in order.
type Chain []Optimizer

func (c Chain) Optimize(ctx context.Context, results []searcher.Result, query string) ([]searcher.Result, error) {
	var err error
	for _, opt := range c {
		results, err = opt.Optimize(ctx, results, query)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
