package optimizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/searcher"
)

func results(pairs ...any) []searcher.Result {
	out := make([]searcher.Result, 0, len(pairs)/3)
	for i := 0; i+2 < len(pairs); i += 3 {
		out = append(out, searcher.Result{
			ID:      pairs[i].(string),
			Content: pairs[i+1].(string),
			Score:   pairs[i+2].(float64),
		})
	}
	return out
}

func TestScoreThreshold(t *testing.T) {
	o, err := NewScoreThreshold(0.5)
	require.NoError(t, err)

	kept, err := o.Optimize(context.Background(), results(
		"a", "alpha", 0.9,
		"b", "beta", 0.5,
		"c", "gamma", 0.49,
	), "q")
	require.NoError(t, err)
	require.Len(t, kept, 2, "0.5 itself passes, 0.49 does not")
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "b", kept[1].ID)
}

func TestScoreThreshold_RejectsOutOfRange(t *testing.T) {
	_, err := NewScoreThreshold(1.5)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	_, err = NewScoreThreshold(-0.1)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestMaxResults(t *testing.T) {
	o, err := NewMaxResults(2)
	require.NoError(t, err)

	in := results("a", "x", 0.9, "b", "y", 0.8, "c", "z", 0.7)
	kept, err := o.Optimize(context.Background(), in, "q")
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)

	kept, err = o.Optimize(context.Background(), in[:1], "q")
	require.NoError(t, err)
	assert.Len(t, kept, 1, "under the limit passes through")
}

func TestDedup_ByContent(t *testing.T) {
	o, err := NewDedup(DedupByContent, 0)
	require.NoError(t, err)

	kept, err := o.Optimize(context.Background(), results(
		"1", "the cache design", 0.6,
		"2", "the cache design", 0.9,
		"3", "something else", 0.7,
	), "q")
	require.NoError(t, err)
	require.Len(t, kept, 2)

	// The higher-scored duplicate survives.
	assert.Equal(t, "2", kept[0].ID)
	assert.Equal(t, "3", kept[1].ID)
}

func TestDedup_ByID(t *testing.T) {
	o, err := NewDedup(DedupByID, 0)
	require.NoError(t, err)

	kept, err := o.Optimize(context.Background(), results(
		"a", "one", 0.5,
		"a", "two", 0.8,
	), "q")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, 0.8, kept[0].Score)
}

func TestDedup_Jaccard(t *testing.T) {
	o, err := NewDedup(DedupByJaccard, 0.8)
	require.NoError(t, err)

	kept, err := o.Optimize(context.Background(), results(
		"1", "the quick brown fox jumps over the lazy dog", 0.9,
		"2", "the quick brown fox jumps over the lazy cat", 0.8,
		"3", "entirely unrelated text about databases", 0.7,
	), "q")
	require.NoError(t, err)
	require.Len(t, kept, 2, "near-identical token sets collapse")
	assert.Equal(t, "1", kept[0].ID)
	assert.Equal(t, "3", kept[1].ID)
}

func TestDedup_UnknownStrategy(t *testing.T) {
	_, err := NewDedup("fuzzy", 0)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestChain_ThresholdDedupCap(t *testing.T) {
	threshold, err := NewScoreThreshold(0.5)
	require.NoError(t, err)
	dedup, err := NewDedup(DedupByContent, 0)
	require.NoError(t, err)
	cap3, err := NewMaxResults(3)
	require.NoError(t, err)
	chain := Chain{threshold, dedup, cap3}

	in := results(
		"1", "alpha", 0.95,
		"2", "beta", 0.85,
		"3", "alpha", 0.80,
		"4", "gamma", 0.75,
		"5", "delta", 0.70,
		"6", "epsilon", 0.55,
		"7", "beta", 0.50,
		"8", "zeta", 0.45,
		"9", "eta", 0.30,
		"10", "theta", 0.10,
	)

	out, err := chain.Optimize(context.Background(), in, "q")
	require.NoError(t, err)
	require.Len(t, out, 3)

	seen := map[string]bool{}
	for i, r := range out {
		assert.GreaterOrEqual(t, r.Score, 0.5)
		assert.False(t, seen[r.Content], "content %q repeated", r.Content)
		seen[r.Content] = true
		if i > 0 {
			assert.GreaterOrEqual(t, out[i-1].Score, r.Score, "ordered by score")
		}
	}
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "2", out[1].ID)
	assert.Equal(t, "4", out[2].ID)
}

// stubReranker returns fixed scores or an error.
type stubReranker struct {
	scores    []float64
	err       error
	available bool
	calls     int
}

func (s *stubReranker) Rerank(_ context.Context, _ string, documents []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(documents)], nil
}

func (s *stubReranker) Available(context.Context) bool { return s.available }
func (s *stubReranker) Close() error                   { return nil }

func TestRerank_ReordersTopN(t *testing.T) {
	stub := &stubReranker{scores: []float64{0.2, 0.9}, available: true}
	o := NewRerank(stub, 2)

	in := results("a", "first", 0.8, "b", "second", 0.7, "c", "third", 0.6)
	out, err := o.Optimize(context.Background(), in, "q")
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, 0.7, out[0].Metadata["original_score"])
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, "c", out[2].ID, "tail beyond top-N keeps its place")
	assert.Equal(t, 0.6, out[2].Score)
	assert.Nil(t, out[2].Metadata)
}

func TestRerank_PassthroughOnEmptyQuery(t *testing.T) {
	stub := &stubReranker{scores: []float64{0.1}, available: true}
	o := NewRerank(stub, 10)

	in := results("a", "x", 0.8)
	out, err := o.Optimize(context.Background(), in, "   ")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, stub.calls)
}

func TestRerank_PassthroughWhenUnavailable(t *testing.T) {
	stub := &stubReranker{available: false}
	o := NewRerank(stub, 10)

	in := results("a", "x", 0.8)
	out, err := o.Optimize(context.Background(), in, "q")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, stub.calls)
}

func TestRerank_PassthroughOnModelError(t *testing.T) {
	stub := &stubReranker{err: errors.Backend(errors.ErrCodeEmbedBackend, "model down", nil), available: true}
	o := NewRerank(stub, 10)

	in := results("a", "x", 0.8)
	out, err := o.Optimize(context.Background(), in, "q")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 1, stub.calls)
}

func TestHTTPReranker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "how does caching work", req.Query)

			resp := rerankResponse{}
			for i := range req.Documents {
				resp.Results = append(resp.Results, struct {
					Index int     `json:"index"`
					Score float64 `json:"relevance_score"`
				}{Index: i, Score: float64(len(req.Documents)-i) * 0.1})
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	assert.True(t, r.Available(ctx))

	scores, err := r.Rerank(ctx, "how does caching work", []string{"doc a", "doc b"})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.2, scores[0], 1e-9)
	assert.InDelta(t, 0.1, scores[1], 1e-9)
}

func TestHTTPReranker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", []string{"doc"})
	assert.True(t, errors.IsKind(err, errors.KindBackend))
	assert.False(t, r.Available(context.Background()))
}

func TestHTTPReranker_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPReranker(HTTPRerankerConfig{})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
