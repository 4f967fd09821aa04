package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/ragline/ragline/internal/errors"
)

// Feature-hash weights: whole tokens dominate, character n-grams add
// robustness to morphology.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric token sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// LocalEmbedder generates deterministic hash-based embeddings in
// process. No network, no model download; reduced semantic quality but
// ideal for tests and air-gapped deployments.
type LocalEmbedder struct {
	mu        sync.RWMutex
	dimension int
	normalize bool
	closed    bool
}

var _ Embedder = (*LocalEmbedder)(nil)

// NewLocalEmbedder creates a local feature-hash embedder.
func NewLocalEmbedder(dimension int, normalize bool) (*LocalEmbedder, error) {
	if dimension < 1 {
		return nil, errors.Validation(errors.ErrCodeConfigInvalid,
			"local embedder: dimension must be positive")
	}
	return &LocalEmbedder{dimension: dimension, normalize: normalize}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errors.Backend(errors.ErrCodeEmbedBackend, "local embedder is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimension), nil
	}

	vector := e.generateVector(trimmed)
	if e.normalize {
		normalizeVector(vector)
	}
	return vector, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *LocalEmbedder) Dimensions() int {
	return e.dimension
}

func (e *LocalEmbedder) ModelName() string {
	return "local-hash"
}

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// generateVector hashes tokens and character n-grams into buckets.
func (e *LocalEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dimension)

	lower := strings.ToLower(text)
	for _, token := range tokenRegex.FindAllString(lower, -1) {
		vector[hashToIndex(token, e.dimension)] += tokenWeight
	}

	compact := strings.Join(strings.Fields(lower), " ")
	runes := []rune(compact)
	for i := 0; i+ngramSize <= len(runes); i++ {
		vector[hashToIndex(string(runes[i:i+ngramSize]), e.dimension)] += ngramWeight
	}
	return vector
}

func hashToIndex(s string, dimension int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(dimension))
}

// normalizeVector scales the vector to unit length in place.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
