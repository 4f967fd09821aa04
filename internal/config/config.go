// Package config loads Ragline configuration from a YAML file with
// RAGLINE_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ragline/ragline/internal/logging"
)

// Config is the complete Ragline configuration.
type Config struct {
	Blob     BlobConfig     `yaml:"blob" json:"blob"`
	Vector   VectorConfig   `yaml:"vector" json:"vector"`
	Text     TextConfig     `yaml:"text" json:"text"`
	Metadata MetadataConfig `yaml:"metadata" json:"metadata"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Logging  logging.Config `yaml:"logging" json:"logging"`
}

// BlobConfig configures the S3-compatible blob store.
type BlobConfig struct {
	// Driver selects the blob backend: "s3" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Endpoint is the S3-compatible endpoint URL. Empty uses AWS defaults.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Region   string `yaml:"region" json:"region"`
	// Bucket is the managed bucket for tenant document storage.
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	// UsePathStyle enables path-style addressing for MinIO-compatible stores.
	UsePathStyle bool `yaml:"use_path_style" json:"use_path_style"`
}

// VectorConfig configures the HNSW vector store.
type VectorConfig struct {
	// DataDir is where graph files persist. Empty keeps indexes in memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// CollectionPrefix namespaces collections per deployment.
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix"`
	// M is the maximum number of graph neighbors per node (default: 16).
	M int `yaml:"m" json:"m"`
	// EfSearch is the search beam width (default: 20).
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// TextConfig configures the bleve text index.
type TextConfig struct {
	DataDir          string `yaml:"data_dir" json:"data_dir"`
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix"`
	// Analyzer is the bleve analyzer name (default: "standard").
	Analyzer string `yaml:"analyzer" json:"analyzer"`
}

// MetadataConfig configures the sqlite metadata store.
type MetadataConfig struct {
	// Path is the sqlite database path. ":memory:" for tests.
	Path string `yaml:"path" json:"path"`
}

// EmbedderConfig configures the remote embedding provider.
type EmbedderConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Model     string `yaml:"model" json:"model"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// PoolSize bounds the number of live embedder instances (keep-k LRU).
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// CacheSize is the query-embedding LRU capacity. 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	// MaxConcurrent bounds concurrent orchestrator invocations.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// EmbedTimeout is the deadline for remote embed calls (default: 30s).
	EmbedTimeout time.Duration `yaml:"embed_timeout" json:"embed_timeout"`
	// SearchTimeout is the deadline for search calls (default: 10s).
	SearchTimeout time.Duration `yaml:"search_timeout" json:"search_timeout"`
	// FetchMultiplier widens searches when optimizers are configured (default: 3).
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Blob: BlobConfig{
			Driver: "s3",
			Region: "us-east-1",
			Bucket: "ragline",
		},
		Vector: VectorConfig{
			DataDir:  "data/vector",
			M:        16,
			EfSearch: 20,
		},
		Text: TextConfig{
			DataDir:  "data/text",
			Analyzer: "standard",
		},
		Metadata: MetadataConfig{
			Path: "data/ragline.db",
		},
		Embedder: EmbedderConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 64,
			PoolSize:  4,
			CacheSize: 1024,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:   8,
			EmbedTimeout:    30 * time.Second,
			SearchTimeout:   10 * time.Second,
			FetchMultiplier: 3,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays RAGLINE_* environment variables. Env always wins
// over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RAGLINE_BLOB_DRIVER"); v != "" {
		cfg.Blob.Driver = v
	}
	if v := os.Getenv("RAGLINE_BLOB_ENDPOINT"); v != "" {
		cfg.Blob.Endpoint = v
	}
	if v := os.Getenv("RAGLINE_BLOB_REGION"); v != "" {
		cfg.Blob.Region = v
	}
	if v := os.Getenv("RAGLINE_BLOB_BUCKET"); v != "" {
		cfg.Blob.Bucket = v
	}
	if v := os.Getenv("RAGLINE_BLOB_ACCESS_KEY"); v != "" {
		cfg.Blob.AccessKey = v
	}
	if v := os.Getenv("RAGLINE_BLOB_SECRET_KEY"); v != "" {
		cfg.Blob.SecretKey = v
	}
	if v := os.Getenv("RAGLINE_VECTOR_DATA_DIR"); v != "" {
		cfg.Vector.DataDir = v
	}
	if v := os.Getenv("RAGLINE_VECTOR_COLLECTION_PREFIX"); v != "" {
		cfg.Vector.CollectionPrefix = v
	}
	if v := os.Getenv("RAGLINE_TEXT_DATA_DIR"); v != "" {
		cfg.Text.DataDir = v
	}
	if v := os.Getenv("RAGLINE_TEXT_COLLECTION_PREFIX"); v != "" {
		cfg.Text.CollectionPrefix = v
	}
	if v := os.Getenv("RAGLINE_METADATA_PATH"); v != "" {
		cfg.Metadata.Path = v
	}
	if v := os.Getenv("RAGLINE_EMBEDDER_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv("RAGLINE_EMBEDDER_BASE_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("RAGLINE_EMBEDDER_MODEL"); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv("RAGLINE_EMBEDDER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedder.BatchSize = n
		}
	}
	if v := os.Getenv("RAGLINE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxConcurrent = n
		}
	}
	if v := os.Getenv("RAGLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAGLINE_LOG_FILE"); v != "" {
		cfg.Logging.FilePath = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Blob.Driver != "s3" && c.Blob.Driver != "memory" {
		return fmt.Errorf("blob.driver must be s3 or memory, got %q", c.Blob.Driver)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be >= 1, got %d", c.Pipeline.MaxConcurrent)
	}
	if c.Pipeline.FetchMultiplier < 1 {
		return fmt.Errorf("pipeline.fetch_multiplier must be >= 1, got %d", c.Pipeline.FetchMultiplier)
	}
	if c.Pipeline.EmbedTimeout <= 0 {
		return fmt.Errorf("pipeline.embed_timeout must be positive")
	}
	if c.Pipeline.SearchTimeout <= 0 {
		return fmt.Errorf("pipeline.search_timeout must be positive")
	}
	if c.Embedder.BatchSize < 1 {
		return fmt.Errorf("embedder.batch_size must be >= 1, got %d", c.Embedder.BatchSize)
	}
	if c.Vector.M < 2 {
		return fmt.Errorf("vector.m must be >= 2, got %d", c.Vector.M)
	}
	return nil
}
