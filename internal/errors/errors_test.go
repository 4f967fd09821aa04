package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromCode(t *testing.T) {
	tests := []struct {
		code string
		kind Kind
	}{
		{ErrCodeUnknownComponent, KindValidation},
		{ErrCodeChunkOverlap, KindValidation},
		{ErrCodeDuplicateDocument, KindDuplicate},
		{ErrCodeKBNotFound, KindNotFound},
		{ErrCodeEmbedTimeout, KindTimeout},
		{ErrCodeVectorBackend, KindBackend},
		{ErrCodeParseFailed, KindBackend},
		{ErrCodeInternal, KindInternal},
		{ErrCodeDimensionMismatch, KindInternal},
		{"garbage", KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.kind, kindFromCode(tt.code))
		})
	}
}

func TestDuplicate_CarriesExistingID(t *testing.T) {
	err := Duplicate("doc-123", true)

	assert.Equal(t, ErrCodeDuplicateDocument, err.Code)
	assert.Equal(t, KindDuplicate, err.Kind)
	assert.Equal(t, "doc-123", err.Details["existing_id"])
	assert.Equal(t, "true", err.Details["existing_is_ssot"])
}

func TestError_RendersDetails(t *testing.T) {
	plain := Validation(ErrCodeQueryEmpty, "query must not be empty")
	assert.Equal(t, "[ERR_103_QUERY_EMPTY] query must not be empty", plain.Error())

	// Details land in the string as sorted key=value pairs, so callers
	// that flatten errors keep the context.
	dup := Duplicate("doc-123", false)
	assert.Equal(t,
		"[ERR_201_DUPLICATE_DOCUMENT] document with identical content already exists "+
			"(existing_id=doc-123, existing_is_ssot=false)",
		dup.Error())

	assert.Contains(t, NotFound(ErrCodeDocumentNotFound, "document", "d9").Error(), "id=d9")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestErrorChain_UnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Backend(ErrCodeVectorBackend, "vector store unavailable", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, stderrors.Is(err, &PipelineError{Code: ErrCodeVectorBackend}))
	assert.False(t, stderrors.Is(err, &PipelineError{Code: ErrCodeTextBackend}))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Timeout(ErrCodeEmbedTimeout, "embed", nil)))
	assert.True(t, IsRetryable(Backend(ErrCodeEmbedBackend, "503", nil)))
	assert.False(t, IsRetryable(Validation(ErrCodeQueryEmpty, "empty query")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestAsPipeline_WrapsUnknownAsInternal(t *testing.T) {
	pe := AsPipeline(fmt.Errorf("boom"))
	require.NotNil(t, pe)
	assert.Equal(t, KindInternal, pe.Kind)

	// Wrapped pipeline errors pass through unchanged.
	orig := NotFound(ErrCodeDocumentNotFound, "document", "d1")
	wrapped := fmt.Errorf("context: %w", orig)
	assert.Equal(t, orig, AsPipeline(wrapped))
}
