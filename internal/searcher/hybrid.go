package searcher

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/errors"
)

// Hybrid fusion defaults.
const (
	DefaultSemanticWeight  = 0.7
	DefaultRRFConstant     = 60
	DefaultFetchMultiplier = 3
)

// HybridConfig tunes RRF fusion.
type HybridConfig struct {
	// SemanticWeight is w_s; the lexical weight is 1 - w_s.
	SemanticWeight float64
	// RRFConstant is the smoothing constant k in w / (k + rank).
	RRFConstant int
	// FetchMultiplier widens both sub-searches to topK * multiplier.
	FetchMultiplier int
}

// DefaultHybridConfig returns the standard fusion parameters.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		SemanticWeight:  DefaultSemanticWeight,
		RRFConstant:     DefaultRRFConstant,
		FetchMultiplier: DefaultFetchMultiplier,
	}
}

// HybridSearcher fans out to the semantic and lexical searchers in
// parallel and fuses their rankings with Reciprocal Rank Fusion.
//
// When one sub-search fails, Search still returns the other side's
// results, flagged with partial_semantic_failure or
// partial_lexical_failure metadata, together with the sub-search error
// so callers can record it. Both failing is an error with no results.
type HybridSearcher struct {
	semantic Searcher
	lexical  Searcher
	cfg      HybridConfig
}

var _ Searcher = (*HybridSearcher)(nil)

// NewHybridSearcher creates a hybrid searcher over the two sides.
func NewHybridSearcher(semantic, lexical Searcher, cfg HybridConfig) *HybridSearcher {
	if cfg.SemanticWeight <= 0 || cfg.SemanticWeight > 1 {
		cfg.SemanticWeight = DefaultSemanticWeight
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.FetchMultiplier <= 0 {
		cfg.FetchMultiplier = DefaultFetchMultiplier
	}
	return &HybridSearcher{semantic: semantic, lexical: lexical, cfg: cfg}
}

func (h *HybridSearcher) Search(ctx context.Context, req Request) ([]Result, error) {
	if err := validateRequest(req, true); err != nil {
		return nil, err
	}
	if req.TopK == 0 {
		return []Result{}, nil
	}

	fetchReq := req
	fetchReq.TopK = req.TopK * h.cfg.FetchMultiplier

	var semResults, lexResults []Result
	var semErr, lexErr error

	// Sub-search failures are handled below, not via group error.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semResults, semErr = h.semantic.Search(gctx, fetchReq)
		return nil
	})
	g.Go(func() error {
		lexResults, lexErr = h.lexical.Search(gctx, fetchReq)
		return nil
	})
	_ = g.Wait()

	switch {
	case semErr != nil && lexErr != nil:
		return nil, errors.Backend(errors.ErrCodeVectorBackend,
			fmt.Sprintf("both sub-searches failed: semantic: %v, lexical: %v", semErr, lexErr), semErr)
	case semErr != nil:
		return flagPartial(truncate(lexResults, req.TopK), "partial_semantic_failure"), semErr
	case lexErr != nil:
		return flagPartial(truncate(semResults, req.TopK), "partial_lexical_failure"), lexErr
	}

	fused := h.fuse(semResults, lexResults)
	return truncate(fused, req.TopK), nil
}

type fusedHit struct {
	result  Result
	score   float64
	semRank int // 1-indexed; 0 when absent from the semantic stream
}

// fuse applies score(d) = w_s/(k+rank_sem) + (1-w_s)/(k+rank_lex),
// renormalizes by the max fused score, and breaks ties by the
// document's rank in the semantic stream.
func (h *HybridSearcher) fuse(semResults, lexResults []Result) []Result {
	k := float64(h.cfg.RRFConstant)
	ws := h.cfg.SemanticWeight
	wl := 1 - ws

	hits := make(map[string]*fusedHit, len(semResults)+len(lexResults))
	for i, r := range semResults {
		hits[r.ID] = &fusedHit{
			result:  r,
			score:   ws / (k + float64(i+1)),
			semRank: i + 1,
		}
	}
	for i, r := range lexResults {
		add := wl / (k + float64(i+1))
		if hit, ok := hits[r.ID]; ok {
			hit.score += add
			continue
		}
		hits[r.ID] = &fusedHit{result: r, score: add}
	}

	fused := make([]*fusedHit, 0, len(hits))
	var maxScore float64
	for _, hit := range hits {
		fused = append(fused, hit)
		if hit.score > maxScore {
			maxScore = hit.score
		}
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		ri, rj := fused[i].semRank, fused[j].semRank
		if ri == 0 {
			ri = len(semResults) + 1
		}
		if rj == 0 {
			rj = len(semResults) + 1
		}
		if ri != rj {
			return ri < rj
		}
		return fused[i].result.ID < fused[j].result.ID
	})

	results := make([]Result, 0, len(fused))
	for _, hit := range fused {
		r := hit.result
		if maxScore > 0 {
			r.Score = hit.score / maxScore
		} else {
			r.Score = 0
		}
		results = append(results, r)
	}
	return results
}

func flagPartial(results []Result, flag string) []Result {
	for i := range results {
		if results[i].Metadata == nil {
			results[i].Metadata = make(map[string]any)
		}
		results[i].Metadata[flag] = true
	}
	return results
}

func truncate(results []Result, limit int) []Result {
	if len(results) <= limit {
		return results
	}
	return results[:limit]
}
