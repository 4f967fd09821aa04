package chunker

import (
	"context"
	"strings"
	"unicode"
)

// SentenceChunker splits text into sentences at terminal punctuation
// followed by whitespace and a capital, then groups sentences into
// chunks respecting chunkSize. Overlap is measured in sentences.
type SentenceChunker struct {
	chunkSize       int
	overlapSentence int
}

var _ Chunker = (*SentenceChunker)(nil)

// NewSentenceChunker creates a sentence-grouping chunker.
func NewSentenceChunker(chunkSize, overlapSentences int) (*SentenceChunker, error) {
	if err := validateSizes(chunkSize, 0); err != nil {
		return nil, err
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &SentenceChunker{chunkSize: chunkSize, overlapSentence: overlapSentences}, nil
}

func (c *SentenceChunker) Chunk(_ context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)
	sentences := splitSentences(runes)
	if len(sentences) == 0 {
		return nil, nil
	}

	var windows []span
	start := 0
	covered := 0 // index of the first sentence not yet in any window
	for start < len(sentences) {
		end := start
		size := 0
		for end < len(sentences) {
			sentLen := sentences[end].end - sentences[end].start
			// Each window must cover at least one new sentence, even
			// when the overlap prefix already fills the budget.
			if end > start && size+sentLen > c.chunkSize && end > covered {
				break
			}
			size += sentLen
			end++
		}
		windows = append(windows, span{start: sentences[start].start, end: sentences[end-1].end})
		if end >= len(sentences) {
			break
		}
		covered = end
		next := end - c.overlapSentence
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spansToChunks(runes, windows, "sentence"), nil
}

// splitSentences finds sentence spans. A sentence ends at terminal
// punctuation followed by whitespace and an upper-case letter, or at
// end of text.
func splitSentences(runes []rune) []span {
	var sentences []span
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Consume trailing closers like quotes or parens.
		j := i + 1
		for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[j]) {
			continue
		}
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k < len(runes) && !unicode.IsUpper(runes[k]) {
			continue
		}
		sentences = append(sentences, span{start: start, end: k})
		start = k
		i = k - 1
	}
	if start < len(runes) && strings.TrimSpace(string(runes[start:])) != "" {
		sentences = append(sentences, span{start: start, end: len(runes)})
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
