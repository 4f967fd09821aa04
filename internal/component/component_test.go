package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/parser"
	"github.com/ragline/ragline/internal/searcher"
)

func builtins(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	return r
}

func TestCreate_Parser(t *testing.T) {
	r := builtins(t)

	instance, err := r.Create(CategoryParser, "markdown", map[string]any{"strip_formatting": true}, Deps{})
	require.NoError(t, err)

	p, ok := instance.(parser.Parser)
	require.True(t, ok)
	doc, err := p.Parse(context.Background(), []byte("# Title\n\nbody"), "a.md")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Title")
}

func TestCreate_UnknownNameListsAvailable(t *testing.T) {
	r := builtins(t)

	_, err := r.Create(CategoryChunker, "paragraph", nil, Deps{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnknownComponent, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "fixed")
	assert.Contains(t, err.Error(), "recursive")
	assert.Contains(t, err.Error(), "sentence")
	assert.Contains(t, err.Error(), "semantic")
}

func TestCreate_RejectsUnknownParams(t *testing.T) {
	r := builtins(t)

	_, err := r.Create(CategoryChunker, "fixed", map[string]any{"chunk_sz": 100}, Deps{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
}

func TestCreate_ConstructorErrorsPropagate(t *testing.T) {
	r := builtins(t)

	// Schema-valid values can still violate constructor constraints.
	_, err := r.Create(CategoryChunker, "fixed", map[string]any{
		"chunk_size": 100, "chunk_overlap": 100,
	}, Deps{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkOverlap, errors.CodeOf(err))
}

func TestCreate_ChunkerWithDefaults(t *testing.T) {
	r := builtins(t)

	instance, err := r.Create(CategoryChunker, "recursive", nil, Deps{})
	require.NoError(t, err)
	c, ok := instance.(chunker.Chunker)
	require.True(t, ok)

	chunks, err := c.Chunk(context.Background(), "one paragraph of text")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestCreate_SearcherRequiresDeps(t *testing.T) {
	r := builtins(t)

	_, err := r.Create(CategorySearcher, "hybrid", nil, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	deps := Deps{
		Vector: indexer.NewVectorIndexer(indexer.VectorConfig{}),
		Text:   indexer.NewTextIndexer(indexer.TextConfig{}),
	}
	instance, err := r.Create(CategorySearcher, "hybrid", map[string]any{"semantic_weight": 0.6}, deps)
	require.NoError(t, err)
	_, ok := instance.(searcher.Searcher)
	assert.True(t, ok)
}

func TestValidate_SchemaOnly(t *testing.T) {
	r := builtins(t)

	assert.NoError(t, r.Validate(CategoryOptimizer, "score_threshold", map[string]any{"tau": 0.5}))

	err := r.Validate(CategoryOptimizer, "score_threshold", map[string]any{"tau": 1.5})
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	err = r.Validate(CategoryOptimizer, "score_threshold", nil)
	assert.Error(t, err, "tau is required")
}

func TestList_SortedMetadata(t *testing.T) {
	r := builtins(t)

	infos := r.List(CategoryParser)
	require.Len(t, infos, 7)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
		assert.NotEmpty(t, info.Description)
	}
	assert.Equal(t, []string{"auto", "csv", "docx", "html", "markdown", "pdf", "text"}, names)

	assert.Nil(t, r.List(Category("nonsense")))
}

func TestRegister_Idempotent(t *testing.T) {
	r := NewRegistry()
	spec := Spec{
		Name:        "text",
		Description: "first",
		New:         func(map[string]any, Deps) (any, error) { return parser.NewTextParser(), nil },
	}
	require.NoError(t, r.Register(CategoryParser, spec))

	spec.Description = "second"
	require.NoError(t, r.Register(CategoryParser, spec))

	infos := r.List(CategoryParser)
	require.Len(t, infos, 1)
	assert.Equal(t, "second", infos[0].Description)
}

func TestRegister_Invalid(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Category("widgets"), Spec{Name: "x", New: func(map[string]any, Deps) (any, error) { return nil, nil }})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	err = r.Register(CategoryParser, Spec{Name: "broken", Schema: "{", New: func(map[string]any, Deps) (any, error) { return nil, nil }})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	err = r.Register(CategoryParser, Spec{Name: "noctor"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestCreate_InterfaceMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(CategoryParser, Spec{
		Name: "bogus",
		New:  func(map[string]any, Deps) (any, error) { return struct{}{}, nil },
	}))

	_, err := r.Create(CategoryParser, "bogus", nil, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInternal))
}

func TestDefault_HasAllCategories(t *testing.T) {
	r := Default()
	for _, cat := range Categories() {
		assert.NotEmpty(t, r.List(cat), "category %s", cat)
	}
}
