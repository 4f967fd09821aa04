package chunker

import (
	"context"
	"math"
	"strings"
)

// SemanticChunker groups sentences at meaning boundaries: consecutive
// sentence windows are embedded and a chunk boundary is emitted where
// cosine similarity drops below the threshold. Without an embedder it
// degrades to greedy sentence grouping.
type SemanticChunker struct {
	embedder            Embedder
	similarityThreshold float64
	windowSentences     int
	minChunkSize        int
	maxChunkSize        int
}

var _ Chunker = (*SemanticChunker)(nil)

// SemanticOption configures a SemanticChunker.
type SemanticOption func(*SemanticChunker)

// WithWindowSentences sets how many sentences form one embedded window.
func WithWindowSentences(n int) SemanticOption {
	return func(c *SemanticChunker) {
		if n > 0 {
			c.windowSentences = n
		}
	}
}

// WithSizeClamp sets the min/max chunk sizes in runes.
func WithSizeClamp(minSize, maxSize int) SemanticOption {
	return func(c *SemanticChunker) {
		if minSize > 0 {
			c.minChunkSize = minSize
		}
		if maxSize > 0 {
			c.maxChunkSize = maxSize
		}
	}
}

// NewSemanticChunker creates a semantic chunker. The embedder may be
// nil, in which case grouping is greedy up to maxChunkSize.
func NewSemanticChunker(embedder Embedder, similarityThreshold float64, opts ...SemanticOption) (*SemanticChunker, error) {
	c := &SemanticChunker{
		embedder:            embedder,
		similarityThreshold: similarityThreshold,
		windowSentences:     1,
		minChunkSize:        64,
		maxChunkSize:        2048,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validateSizes(c.maxChunkSize, 0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)
	sentences := splitSentences(runes)
	if len(sentences) == 0 {
		return nil, nil
	}

	if c.embedder == nil {
		return spansToChunks(runes, c.greedy(sentences), "semantic"), nil
	}

	windows := c.windows(sentences)
	vectors, err := c.embedWindows(ctx, runes, windows)
	if err != nil {
		return nil, err
	}

	// A boundary before window i means sentences of window i start a
	// new chunk.
	var spans []span
	cur := span{start: sentences[0].start, end: windows[0].end}
	for i := 1; i < len(windows); i++ {
		size := cur.end - cur.start
		boundary := cosineSimilarity(vectors[i-1], vectors[i]) < c.similarityThreshold

		switch {
		case size >= c.maxChunkSize,
			boundary && size >= c.minChunkSize:
			spans = append(spans, cur)
			cur = span{start: windows[i].start, end: windows[i].end}
		default:
			cur.end = windows[i].end
		}
	}
	spans = append(spans, cur)
	return spansToChunks(runes, spans, "semantic"), nil
}

// greedy groups sentences up to maxChunkSize with no embeddings.
func (c *SemanticChunker) greedy(sentences []span) []span {
	var out []span
	cur := sentences[0]
	for _, s := range sentences[1:] {
		if s.end-cur.start > c.maxChunkSize {
			out = append(out, cur)
			cur = s
			continue
		}
		cur.end = s.end
	}
	return append(out, cur)
}

// windows groups sentences into consecutive windows of windowSentences.
func (c *SemanticChunker) windows(sentences []span) []span {
	var out []span
	for i := 0; i < len(sentences); i += c.windowSentences {
		j := i + c.windowSentences
		if j > len(sentences) {
			j = len(sentences)
		}
		out = append(out, span{start: sentences[i].start, end: sentences[j-1].end})
	}
	return out
}

func (c *SemanticChunker) embedWindows(ctx context.Context, runes []rune, windows []span) ([][]float32, error) {
	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = string(runes[w.start:w.end])
	}
	return c.embedder.EmbedBatch(ctx, texts)
}

// cosineSimilarity of two vectors; 0 when either has zero norm.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
