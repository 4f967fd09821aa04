package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/ragline/ragline/internal/errors"
)

// OpenAIConfig configures the remote embedder.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// BatchSize caps texts per request. Defaults to DefaultBatchSize.
	BatchSize int
	// Dimensions overrides the model's known dimension, for
	// OpenAI-compatible servers with custom models.
	Dimensions int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API in batches.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int

	mu        sync.Mutex
	dimension int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a remote embedder. A missing API key is a
// configuration error, not a backend fault.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			"openai embedder: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dimension := cfg.Dimensions
	if dimension == 0 {
		dimension = knownModelDimension(cfg.Model)
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		dimension: dimension,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.Backend(errors.ErrCodeEmbedBackend, "no embedding returned", nil)
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// The API rejects empty inputs; coerce them to a single space.
	inputs := make([]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			inputs[i] = " "
		} else {
			inputs[i] = text
		}
	}

	vectors := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch, err := e.embedBatch(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Internal(
			fmt.Sprintf("embed response count %d != request count %d", len(resp.Data), len(texts)), nil)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		vectors[data.Index] = data.Embedding
	}

	e.mu.Lock()
	if e.dimension == 0 && len(vectors) > 0 {
		e.dimension = len(vectors[0])
	}
	e.mu.Unlock()
	return vectors, nil
}

// classify maps transport errors to the pipeline error model:
// deadline exceeded is a Timeout, auth failures are configuration,
// everything else is a retryable backend fault.
func (e *OpenAIEmbedder) classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Timeout(errors.ErrCodeEmbedTimeout, "embed", err)
	}
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return errors.Validation(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("embed backend rejected credentials: %v", apiErr.Message))
		}
	}
	return errors.Backend(errors.ErrCodeEmbedBackend, "embed request failed", err)
}

func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Close() error {
	return nil
}

func knownModelDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return 0 // resolved lazily from the first response
	}
}
