package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/searcher"
)

// Reranker defaults.
const (
	DefaultRerankTopN    = 20
	DefaultRerankTimeout = 30 * time.Second
)

// Reranker scores query-document pairs with a cross-encoder model.
type Reranker interface {
	// Rerank returns one relevance score per document, in input order.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
	// Available reports whether the model can serve requests.
	Available(ctx context.Context) bool
	// Close releases resources.
	Close() error
}

// Rerank replaces scores on the top-N results with cross-encoder
// output and re-sorts them; the remainder keeps its order below. The
// previous score is preserved as original_score metadata. An empty
// query or an unavailable model degrades to passthrough.
type Rerank struct {
	reranker Reranker
	topN     int
}

var _ Optimizer = (*Rerank)(nil)

// NewRerank creates a reranking optimizer.
func NewRerank(reranker Reranker, topN int) *Rerank {
	if topN <= 0 {
		topN = DefaultRerankTopN
	}
	return &Rerank{reranker: reranker, topN: topN}
}

func (o *Rerank) Optimize(ctx context.Context, results []searcher.Result, query string) ([]searcher.Result, error) {
	if len(results) == 0 || strings.TrimSpace(query) == "" {
		return results, nil
	}
	if o.reranker == nil || !o.reranker.Available(ctx) {
		slog.Debug("reranker unavailable, passing results through")
		return results, nil
	}

	n := o.topN
	if n > len(results) {
		n = len(results)
	}
	documents := make([]string, n)
	for i := 0; i < n; i++ {
		documents[i] = results[i].Content
	}

	scores, err := o.reranker.Rerank(ctx, query, documents)
	if err != nil {
		// Model faults degrade to passthrough, preserving caller intent.
		slog.Warn("rerank failed, passing results through", "error", err)
		return results, nil
	}
	if len(scores) != n {
		return results, nil
	}

	reranked := make([]searcher.Result, n)
	for i := 0; i < n; i++ {
		r := results[i]
		meta := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["original_score"] = r.Score
		r.Metadata = meta
		r.Score = scores[i]
		reranked[i] = r
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	return append(reranked, results[n:]...), nil
}

// HTTPRerankerConfig configures the remote cross-encoder client.
type HTTPRerankerConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// HTTPReranker calls a cross-encoder model served over HTTP.
type HTTPReranker struct {
	client   *http.Client
	endpoint string
	model    string
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates the remote reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			"reranker endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	return &HTTPReranker{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: documents})
	if err != nil {
		return nil, errors.Internal("marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal("build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeEmbedBackend, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Backend(errors.ErrCodeEmbedBackend,
			fmt.Sprintf("rerank service returned %d: %s", resp.StatusCode, payload), nil)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Backend(errors.ErrCodeEmbedBackend, "decode rerank response", err)
	}

	scores := make([]float64, len(documents))
	for _, result := range decoded.Results {
		if result.Index >= 0 && result.Index < len(scores) {
			scores[result.Index] = result.Score
		}
	}
	return scores, nil
}

func (r *HTTPReranker) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *HTTPReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
