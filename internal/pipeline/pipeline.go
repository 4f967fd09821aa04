// Package pipeline contains the ingestion and retrieval orchestrators.
// Orchestrators never name concrete component implementations; they
// instantiate everything through the component registry from the
// declarative pipeline config.
package pipeline

import (
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/component"
	"github.com/ragline/ragline/internal/embed"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/store"
)

// Defaults for orchestrator options.
const (
	DefaultEmbedTimeout  = 30 * time.Second
	DefaultSearchTimeout = 10 * time.Second
	DefaultMaxConcurrent = 8
	DefaultFetchFactor   = 3
)

// ComponentConfig selects one component and its params. The JSON form
// is flat: {"type": "fixed", "chunk_size": 512}.
type ComponentConfig struct {
	Type   string
	Params map[string]any
}

func (c ComponentConfig) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Params)+1)
	for k, v := range c.Params {
		m[k] = v
	}
	m["type"] = c.Type
	return json.Marshal(m)
}

func (c *ComponentConfig) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if t, ok := m["type"].(string); ok {
		c.Type = t
	}
	delete(m, "type")
	if len(m) > 0 {
		c.Params = m
	} else {
		c.Params = nil
	}
	return nil
}

// Deps is the shared infrastructure behind an orchestrator.
type Deps struct {
	Store    *store.Store
	Blob     blob.Client
	Vector   *indexer.VectorIndexer
	Text     *indexer.TextIndexer
	Registry *component.Registry
	Logger   *slog.Logger
}

// EmbedderDefaults is process-level embedder configuration. Credential
// and model defaults are merged into the params of remote embedders
// resolved from pipeline configs; explicit pipeline params win.
type EmbedderDefaults struct {
	APIKey    string
	BaseURL   string
	Model     string
	BatchSize int
	// PoolSize bounds live embedder instances shared across runs.
	PoolSize int
	// CacheSize is the per-embedder embedding LRU capacity. 0 disables
	// caching.
	CacheSize int
}

// Options tunes orchestrator behavior.
type Options struct {
	// ManagedBucket receives versioned copies of ingested documents.
	ManagedBucket string
	// EmbedTimeout bounds remote embedding calls.
	EmbedTimeout time.Duration
	// SearchTimeout bounds one search invocation.
	SearchTimeout time.Duration
	// MaxConcurrent bounds concurrent orchestrator invocations.
	MaxConcurrent int
	// FetchMultiplier widens searches to top_k * multiplier when
	// optimizers are configured, so filtering still fills top_k.
	FetchMultiplier int
	// Embedder carries process-level embedder defaults.
	Embedder EmbedderDefaults
}

// Orchestrator runs ingestion and retrieval pipelines over the shared
// infrastructure, bounding concurrent invocations with a weighted
// semaphore. Embedder instances are pooled per configuration and
// reused across runs.
type Orchestrator struct {
	deps Deps
	opts Options
	sem  *semaphore.Weighted
	pool *embed.Pool
}

// New creates an orchestrator. Store, Blob, Vector, Text, and Registry
// are required.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil || deps.Blob == nil || deps.Vector == nil ||
		deps.Text == nil || deps.Registry == nil {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			"orchestrator requires store, blob, vector, text, and registry")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.ManagedBucket == "" {
		opts.ManagedBucket = "ragline"
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.FetchMultiplier <= 0 {
		opts.FetchMultiplier = DefaultFetchFactor
	}

	// Pool keys are the canonical JSON of the resolved embedder config,
	// so identical pipeline configs share one instance.
	factory := func(key string) (embed.Embedder, error) {
		var cfg ComponentConfig
		if err := json.Unmarshal([]byte(key), &cfg); err != nil {
			return nil, errors.Internal("decode embedder pool key", err)
		}
		instance, err := deps.Registry.Create(component.CategoryEmbedder,
			cfg.Type, cfg.Params, component.Deps{})
		if err != nil {
			return nil, err
		}
		embedder := instance.(embed.Embedder)
		if opts.Embedder.CacheSize > 0 {
			return embed.NewCachedEmbedder(embedder, opts.Embedder.CacheSize), nil
		}
		return embedder, nil
	}

	return &Orchestrator{
		deps: deps,
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		pool: embed.NewPool(opts.Embedder.PoolSize, factory),
	}, nil
}

// Close releases the pooled embedders. Shared infrastructure in Deps
// stays open; it belongs to the caller.
func (o *Orchestrator) Close() error {
	return o.pool.Close()
}

// embedderFor resolves the pooled embedder for a pipeline config,
// merging process-level defaults into remote embedder params.
func (o *Orchestrator) embedderFor(cfg ComponentConfig) (embed.Embedder, error) {
	typ := typeOr(cfg.Type, "local")
	params := make(map[string]any, len(cfg.Params)+4)
	for k, v := range cfg.Params {
		params[k] = v
	}
	if typ == "openai" {
		d := o.opts.Embedder
		if _, ok := params["api_key"]; !ok && d.APIKey != "" {
			params["api_key"] = d.APIKey
		}
		if _, ok := params["base_url"]; !ok && d.BaseURL != "" {
			params["base_url"] = d.BaseURL
		}
		if _, ok := params["model"]; !ok && d.Model != "" {
			params["model"] = d.Model
		}
		if _, ok := params["batch_size"]; !ok && d.BatchSize > 0 {
			params["batch_size"] = d.BatchSize
		}
	}

	key, err := json.Marshal(ComponentConfig{Type: typ, Params: params})
	if err != nil {
		return nil, errors.Internal("encode embedder pool key", err)
	}
	return o.pool.Get(string(key))
}

// typeOr defaults an unset component type.
func typeOr(t, fallback string) string {
	if t == "" {
		return fallback
	}
	return t
}

// asMap renders a config struct to the map shape persisted on runs.
func asMap(v any) map[string]any {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	return m
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
