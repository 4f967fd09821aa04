package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/component"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/logging"
	"github.com/ragline/ragline/internal/pipeline"
	"github.com/ragline/ragline/internal/ssot"
	"github.com/ragline/ragline/internal/store"
)

// engine bundles the wired infrastructure behind one CLI invocation.
type engine struct {
	cfg      *config.Config
	store    *store.Store
	blob     blob.Client
	vector   *indexer.VectorIndexer
	text     *indexer.TextIndexer
	registry *component.Registry
	orch     *pipeline.Orchestrator
	sync     *ssot.Synchronizer

	cleanups []func()
}

// newEngine loads configuration and wires every backend the pipelines
// need. Callers must Close.
func newEngine(ctx context.Context, opts *rootOptions) (*engine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger, logCleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	eng := &engine{cfg: cfg, cleanups: []func(){logCleanup}}

	eng.blob, err = newBlobClient(ctx, cfg.Blob)
	if err != nil {
		eng.Close()
		return nil, err
	}

	eng.store, err = store.Open(cfg.Metadata.Path)
	if err != nil {
		eng.Close()
		return nil, err
	}

	eng.vector = indexer.NewVectorIndexer(indexer.VectorConfig{
		DataDir:          cfg.Vector.DataDir,
		CollectionPrefix: cfg.Vector.CollectionPrefix,
		M:                cfg.Vector.M,
		EfSearch:         cfg.Vector.EfSearch,
	})
	eng.text = indexer.NewTextIndexer(indexer.TextConfig{
		DataDir:          cfg.Text.DataDir,
		CollectionPrefix: cfg.Text.CollectionPrefix,
		Analyzer:         cfg.Text.Analyzer,
	})
	eng.registry = component.Default()

	eng.orch, err = pipeline.New(pipeline.Deps{
		Store:    eng.store,
		Blob:     eng.blob,
		Vector:   eng.vector,
		Text:     eng.text,
		Registry: eng.registry,
		Logger:   logger,
	}, pipeline.Options{
		ManagedBucket:   cfg.Blob.Bucket,
		EmbedTimeout:    cfg.Pipeline.EmbedTimeout,
		SearchTimeout:   cfg.Pipeline.SearchTimeout,
		MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
		FetchMultiplier: cfg.Pipeline.FetchMultiplier,
		Embedder: pipeline.EmbedderDefaults{
			APIKey:    cfg.Embedder.APIKey,
			BaseURL:   cfg.Embedder.BaseURL,
			Model:     cfg.Embedder.Model,
			BatchSize: cfg.Embedder.BatchSize,
			PoolSize:  cfg.Embedder.PoolSize,
			CacheSize: cfg.Embedder.CacheSize,
		},
	})
	if err != nil {
		eng.Close()
		return nil, err
	}

	eng.sync = ssot.New(eng.store, eng.blob, logger)
	return eng, nil
}

func newBlobClient(ctx context.Context, cfg config.BlobConfig) (blob.Client, error) {
	if cfg.Driver == "memory" {
		return blob.NewMemoryClient(), nil
	}
	return blob.NewS3Client(ctx, blob.S3Config{
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
	})
}

// Close releases every backend in reverse wiring order.
func (e *engine) Close() {
	if e.orch != nil {
		_ = e.orch.Close()
	}
	if e.text != nil {
		_ = e.text.Close()
	}
	if e.vector != nil {
		_ = e.vector.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.blob != nil {
		_ = e.blob.Close()
	}
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

// loadPipelineFile reads a YAML or JSON pipeline config into v.
// Component entries use the flat form, so the document is decoded as a
// generic map and re-fed through the JSON unmarshalers.
func loadPipelineFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode pipeline config: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("decode pipeline config: %w", err)
	}
	return nil
}
