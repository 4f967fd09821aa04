package chunker

import (
	"context"
	"strings"
)

// DefaultSeparators is the separator hierarchy for recursive splitting,
// from largest semantic unit to smallest.
var DefaultSeparators = []string{
	"\n\n", // paragraph break
	"\n",   // line break
	". ",   // sentence end
	"? ",   // question end
	"! ",   // exclamation end
	" ",    // word
	"",     // character (last resort)
}

// RecursiveChunker splits at the most natural boundary that keeps
// pieces within chunkSize, then merges pieces into target-sized windows
// with overlap measured in runes. Chunks are exact substrings of the
// source text, so offsets are always derivable.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

var _ Chunker = (*RecursiveChunker)(nil)

// NewRecursiveChunker creates a recursive chunker over DefaultSeparators.
func NewRecursiveChunker(chunkSize, chunkOverlap int) (*RecursiveChunker, error) {
	if err := validateSizes(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &RecursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// WithSeparators overrides the separator hierarchy.
func (c *RecursiveChunker) WithSeparators(seps []string) *RecursiveChunker {
	c.separators = seps
	return c
}

func (c *RecursiveChunker) Chunk(_ context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)
	pieces := c.split(runes, 0, len(runes), c.separators)
	windows := c.merge(pieces)
	return spansToChunks(runes, windows, "recursive"), nil
}

// split returns ordered, non-overlapping spans each at most chunkSize,
// descending the separator hierarchy for oversized pieces. Separators
// stay attached to the piece they terminate.
func (c *RecursiveChunker) split(runes []rune, start, end int, seps []string) []span {
	if end-start <= c.chunkSize {
		return []span{{start: start, end: end}}
	}
	if len(seps) == 0 || seps[0] == "" {
		// Character level: hard windows.
		var out []span
		for s := start; s < end; s += c.chunkSize {
			e := s + c.chunkSize
			if e > end {
				e = end
			}
			out = append(out, span{start: s, end: e})
		}
		return out
	}

	sep := []rune(seps[0])
	var pieces []span
	pieceStart := start
	for i := start; i+len(sep) <= end; {
		if !runesMatch(runes, i, sep) {
			i++
			continue
		}
		pieces = append(pieces, span{start: pieceStart, end: i + len(sep)})
		i += len(sep)
		pieceStart = i
	}
	if pieceStart < end {
		pieces = append(pieces, span{start: pieceStart, end: end})
	}

	if len(pieces) <= 1 {
		return c.split(runes, start, end, seps[1:])
	}

	var out []span
	for _, p := range pieces {
		if p.end-p.start > c.chunkSize {
			out = append(out, c.split(runes, p.start, p.end, seps[1:])...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// merge packs consecutive pieces into windows of at most chunkSize,
// starting each new window chunkOverlap runes before the piece that
// overflowed the previous one.
func (c *RecursiveChunker) merge(pieces []span) []span {
	if len(pieces) == 0 {
		return nil
	}
	var out []span
	cur := pieces[0]
	for _, p := range pieces[1:] {
		if p.end-cur.start <= c.chunkSize {
			cur.end = p.end
			continue
		}
		out = append(out, cur)

		next := p.start - c.chunkOverlap
		if next <= cur.start {
			next = cur.start + 1
		}
		if p.end-next > c.chunkSize {
			next = p.end - c.chunkSize
		}
		cur = span{start: next, end: p.end}
	}
	return append(out, cur)
}

func runesMatch(runes []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}
