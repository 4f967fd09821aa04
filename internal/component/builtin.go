package component

import (
	"time"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/embed"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/optimizer"
	"github.com/ragline/ragline/internal/parser"
	"github.com/ragline/ragline/internal/searcher"
)

// Builtin defaults.
const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultLocalDim     = 384
	defaultCacheSize    = 1024
)

// RegisterBuiltins registers every built-in component.
func RegisterBuiltins(r *Registry) error {
	all := []struct {
		cat  Category
		spec Spec
	}{
		{CategoryParser, Spec{
			Name:        "text",
			Description: "Plain text: UTF-8 validation and newline normalization",
			New: func(_ map[string]any, _ Deps) (any, error) {
				return parser.NewTextParser(), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "markdown",
			Description: "Markdown with optional formatting strip",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"strip_formatting": {"type": "boolean"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return parser.NewMarkdownParser(boolParam(params, "strip_formatting", true)), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "html",
			Description: "HTML text extraction, script and style removed",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"keep_scripts": {"type": "boolean"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return parser.NewHTMLParser(boolParam(params, "keep_scripts", false)), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "csv",
			Description: "CSV and TSV with delimiter detection",
			New: func(_ map[string]any, _ Deps) (any, error) {
				return parser.NewCSVParser(), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "pdf",
			Description: "PDF per-page text extraction",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"extract_images": {"type": "boolean"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return parser.NewPDFParser(boolParam(params, "extract_images", false)), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "docx",
			Description: "DOCX paragraph and table extraction",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"include_tables": {"type": "boolean"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return parser.NewDOCXParser(boolParam(params, "include_tables", true)), nil
			},
		}},
		{CategoryParser, Spec{
			Name:        "auto",
			Description: "Format dispatch by extension then magic bytes",
			New: func(_ map[string]any, _ Deps) (any, error) {
				return parser.NewAutoParser(), nil
			},
		}},

		{CategoryChunker, Spec{
			Name:        "fixed",
			Description: "Fixed-size windows with character overlap",
			Schema:      sizedChunkerSchema,
			New: func(params map[string]any, _ Deps) (any, error) {
				return chunker.NewFixedChunker(
					intParam(params, "chunk_size", defaultChunkSize),
					intParam(params, "chunk_overlap", defaultChunkOverlap),
				)
			},
		}},
		{CategoryChunker, Spec{
			Name:        "recursive",
			Description: "Separator-hierarchy splitting merged to target windows",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"chunk_size": {"type": "integer", "minimum": 1},
					"chunk_overlap": {"type": "integer", "minimum": 0},
					"separators": {"type": "array", "items": {"type": "string"}}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				c, err := chunker.NewRecursiveChunker(
					intParam(params, "chunk_size", defaultChunkSize),
					intParam(params, "chunk_overlap", defaultChunkOverlap),
				)
				if err != nil {
					return nil, err
				}
				if seps := stringSliceParam(params, "separators"); len(seps) > 0 {
					c = c.WithSeparators(seps)
				}
				return c, nil
			},
		}},
		{CategoryChunker, Spec{
			Name:        "sentence",
			Description: "Sentence grouping with sentence-count overlap",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"chunk_size": {"type": "integer", "minimum": 1},
					"overlap_sentences": {"type": "integer", "minimum": 0}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return chunker.NewSentenceChunker(
					intParam(params, "chunk_size", defaultChunkSize),
					intParam(params, "overlap_sentences", 1),
				)
			},
		}},
		{CategoryChunker, Spec{
			Name:        "semantic",
			Description: "Meaning-boundary chunking via embedding similarity",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"similarity_threshold": {"type": "number", "minimum": -1, "maximum": 1},
					"window_sentences": {"type": "integer", "minimum": 1},
					"min_chunk_size": {"type": "integer", "minimum": 1},
					"max_chunk_size": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, deps Deps) (any, error) {
				return chunker.NewSemanticChunker(
					deps.Embedder,
					floatParam(params, "similarity_threshold", 0.75),
					chunker.WithWindowSentences(intParam(params, "window_sentences", 1)),
					chunker.WithSizeClamp(
						intParam(params, "min_chunk_size", 0),
						intParam(params, "max_chunk_size", 0),
					),
				)
			},
		}},

		{CategoryEmbedder, Spec{
			Name:        "openai",
			Description: "OpenAI-compatible embeddings API, batched",
			Dimension:   1536,
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"api_key": {"type": "string"},
					"base_url": {"type": "string"},
					"model": {"type": "string"},
					"batch_size": {"type": "integer", "minimum": 1},
					"dimensions": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return embed.NewOpenAIEmbedder(embed.OpenAIConfig{
					APIKey:     stringParam(params, "api_key", ""),
					BaseURL:    stringParam(params, "base_url", ""),
					Model:      stringParam(params, "model", ""),
					BatchSize:  intParam(params, "batch_size", 0),
					Dimensions: intParam(params, "dimensions", 0),
				})
			},
		}},
		{CategoryEmbedder, Spec{
			Name:        "local",
			Description: "Deterministic in-process feature-hash embedder",
			Dimension:   defaultLocalDim,
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"dimension": {"type": "integer", "minimum": 1},
					"normalize": {"type": "boolean"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return embed.NewLocalEmbedder(
					intParam(params, "dimension", defaultLocalDim),
					boolParam(params, "normalize", true),
				)
			},
		}},
		{CategoryEmbedder, Spec{
			Name:        "cached",
			Description: "LRU cache over the shared embedder",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"cache_size": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, deps Deps) (any, error) {
				if deps.Embedder == nil {
					return nil, errors.Validation(errors.ErrCodeConfigInvalid,
						"cached embedder requires a shared embedder")
				}
				return embed.NewCachedEmbedder(deps.Embedder,
					intParam(params, "cache_size", defaultCacheSize)), nil
			},
		}},

		{CategoryIndexer, Spec{
			Name:        "vector",
			Description: "HNSW vector index with on-disk persistence",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"data_dir": {"type": "string"},
					"m": {"type": "integer", "minimum": 2},
					"ef_search": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return indexer.NewVectorIndexer(indexer.VectorConfig{
					DataDir:  stringParam(params, "data_dir", ""),
					M:        intParam(params, "m", 0),
					EfSearch: intParam(params, "ef_search", 0),
				}), nil
			},
		}},
		{CategoryIndexer, Spec{
			Name:        "text",
			Description: "Bleve full-text index",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"data_dir": {"type": "string"},
					"analyzer": {"type": "string"}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return indexer.NewTextIndexer(indexer.TextConfig{
					DataDir:  stringParam(params, "data_dir", ""),
					Analyzer: stringParam(params, "analyzer", ""),
				}), nil
			},
		}},

		{CategorySearcher, Spec{
			Name:        "semantic",
			Description: "ANN search over the vector index",
			New: func(_ map[string]any, deps Deps) (any, error) {
				if deps.Vector == nil {
					return nil, errors.Validation(errors.ErrCodeConfigInvalid,
						"semantic searcher requires the vector index")
				}
				return searcher.NewSemanticSearcher(deps.Vector, deps.Embedder), nil
			},
		}},
		{CategorySearcher, Spec{
			Name:        "lexical",
			Description: "BM25 search over the text index",
			New: func(_ map[string]any, deps Deps) (any, error) {
				if deps.Text == nil {
					return nil, errors.Validation(errors.ErrCodeConfigInvalid,
						"lexical searcher requires the text index")
				}
				return searcher.NewLexicalSearcher(deps.Text), nil
			},
		}},
		{CategorySearcher, Spec{
			Name:        "hybrid",
			Description: "Parallel semantic and lexical search fused with RRF",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"semantic_weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
					"rrf_k": {"type": "integer", "minimum": 1},
					"fetch_multiplier": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, deps Deps) (any, error) {
				if deps.Vector == nil || deps.Text == nil {
					return nil, errors.Validation(errors.ErrCodeConfigInvalid,
						"hybrid searcher requires both indexes")
				}
				return searcher.NewHybridSearcher(
					searcher.NewSemanticSearcher(deps.Vector, deps.Embedder),
					searcher.NewLexicalSearcher(deps.Text),
					searcher.HybridConfig{
						SemanticWeight:  floatParam(params, "semantic_weight", 0),
						RRFConstant:     intParam(params, "rrf_k", 0),
						FetchMultiplier: intParam(params, "fetch_multiplier", 0),
					},
				), nil
			},
		}},

		{CategoryOptimizer, Spec{
			Name:        "score_threshold",
			Description: "Drop results scoring below tau",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"required": ["tau"],
				"properties": {
					"tau": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return optimizer.NewScoreThreshold(floatParam(params, "tau", 0))
			},
		}},
		{CategoryOptimizer, Spec{
			Name:        "max_results",
			Description: "Cap the result count",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"required": ["limit"],
				"properties": {
					"limit": {"type": "integer", "minimum": 0}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return optimizer.NewMaxResults(intParam(params, "limit", 0))
			},
		}},
		{CategoryOptimizer, Spec{
			Name:        "dedup",
			Description: "Collapse duplicates, keeping the best-scored",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"strategy": {"type": "string", "enum": ["id", "content", "jaccard"]},
					"similarity_threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				return optimizer.NewDedup(
					stringParam(params, "strategy", optimizer.DedupByContent),
					floatParam(params, "similarity_threshold", 0),
				)
			},
		}},
		{CategoryOptimizer, Spec{
			Name:        "rerank",
			Description: "Cross-encoder reranking of the top results",
			Schema: `{
				"type": "object",
				"additionalProperties": false,
				"required": ["endpoint"],
				"properties": {
					"endpoint": {"type": "string", "minLength": 1},
					"model": {"type": "string"},
					"top_n": {"type": "integer", "minimum": 1},
					"timeout_seconds": {"type": "integer", "minimum": 1}
				}
			}`,
			New: func(params map[string]any, _ Deps) (any, error) {
				reranker, err := optimizer.NewHTTPReranker(optimizer.HTTPRerankerConfig{
					Endpoint: stringParam(params, "endpoint", ""),
					Model:    stringParam(params, "model", ""),
					Timeout:  time.Duration(intParam(params, "timeout_seconds", 0)) * time.Second,
				})
				if err != nil {
					return nil, err
				}
				return optimizer.NewRerank(reranker, intParam(params, "top_n", 0)), nil
			},
		}},
	}

	for _, entry := range all {
		if err := r.Register(entry.cat, entry.spec); err != nil {
			return err
		}
	}
	return nil
}

const sizedChunkerSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"chunk_size": {"type": "integer", "minimum": 1},
		"chunk_overlap": {"type": "integer", "minimum": 0}
	}
}`
