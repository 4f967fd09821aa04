package optimizer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/searcher"
)

// ScoreThreshold keeps results with score >= tau.
type ScoreThreshold struct {
	tau float64
}

var _ Optimizer = (*ScoreThreshold)(nil)

// NewScoreThreshold creates a threshold filter with tau in [0, 1].
func NewScoreThreshold(tau float64) (*ScoreThreshold, error) {
	if tau < 0 || tau > 1 {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("score threshold must be in [0, 1], got %g", tau))
	}
	return &ScoreThreshold{tau: tau}, nil
}

func (o *ScoreThreshold) Optimize(_ context.Context, results []searcher.Result, _ string) ([]searcher.Result, error) {
	kept := make([]searcher.Result, 0, len(results))
	for _, r := range results {
		if r.Score >= o.tau {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// MaxResults keeps the first limit results.
type MaxResults struct {
	limit int
}

var _ Optimizer = (*MaxResults)(nil)

// NewMaxResults creates a result cap.
func NewMaxResults(limit int) (*MaxResults, error) {
	if limit < 0 {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("max_results limit must be non-negative, got %d", limit))
	}
	return &MaxResults{limit: limit}, nil
}

func (o *MaxResults) Optimize(_ context.Context, results []searcher.Result, _ string) ([]searcher.Result, error) {
	if len(results) <= o.limit {
		return results, nil
	}
	return results[:o.limit], nil
}

// Dedup grouping strategies.
const (
	DedupByID      = "id"
	DedupByContent = "content"
	DedupByJaccard = "jaccard"
)

// Dedup keeps the highest-scored result per duplicate group. Groups
// form by id, exact content, or token-Jaccard overlap at or above the
// similarity threshold.
type Dedup struct {
	strategy            string
	similarityThreshold float64
}

var _ Optimizer = (*Dedup)(nil)

// NewDedup creates a deduplicator. The threshold only applies to the
// jaccard strategy.
func NewDedup(strategy string, similarityThreshold float64) (*Dedup, error) {
	switch strategy {
	case DedupByID, DedupByContent, DedupByJaccard:
	default:
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown dedup strategy %q", strategy))
	}
	if similarityThreshold <= 0 || similarityThreshold > 1 {
		similarityThreshold = 0.8
	}
	return &Dedup{strategy: strategy, similarityThreshold: similarityThreshold}, nil
}

func (o *Dedup) Optimize(_ context.Context, results []searcher.Result, _ string) ([]searcher.Result, error) {
	if len(results) <= 1 {
		return results, nil
	}

	// Score-descending scan keeps the best representative per group.
	ordered := make([]searcher.Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	switch o.strategy {
	case DedupByJaccard:
		return o.dedupJaccard(ordered), nil
	default:
		return o.dedupExact(ordered), nil
	}
}

func (o *Dedup) dedupExact(ordered []searcher.Result) []searcher.Result {
	seen := make(map[string]bool, len(ordered))
	kept := make([]searcher.Result, 0, len(ordered))
	for _, r := range ordered {
		key := r.ID
		if o.strategy == DedupByContent {
			key = strings.TrimSpace(r.Content)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}
	return kept
}

func (o *Dedup) dedupJaccard(ordered []searcher.Result) []searcher.Result {
	var kept []searcher.Result
	var keptTokens []map[string]bool
	for _, r := range ordered {
		tokens := tokenSet(r.Content)
		duplicate := false
		for _, prev := range keptTokens {
			if jaccard(tokens, prev) >= o.similarityThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, r)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range wordRegex.FindAllString(strings.ToLower(s), -1) {
		set[token] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
