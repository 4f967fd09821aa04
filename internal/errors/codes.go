// Package errors provides structured error handling for Ragline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Validation errors
//   - 2XX: Duplicate-document errors
//   - 3XX: Not-found errors
//   - 4XX: Timeout errors
//   - 5XX: Backend errors
//   - 6XX: Internal errors
package errors

// Kind classifies an error into one of the six pipeline error kinds.
// The disposition of each kind (surface at boundary, record on document,
// record on run) is decided by the orchestrators, not here.
type Kind string

const (
	// KindValidation indicates bad caller input; never recorded to a run.
	KindValidation Kind = "VALIDATION"
	// KindDuplicate indicates a checksum collision within a knowledge base.
	KindDuplicate Kind = "DUPLICATE"
	// KindNotFound indicates an unknown run, document, or knowledge base.
	KindNotFound Kind = "NOT_FOUND"
	// KindTimeout indicates a deadline exceeded on embed or search.
	KindTimeout Kind = "TIMEOUT"
	// KindBackend indicates an unavailable or faulting collaborator.
	KindBackend Kind = "BACKEND"
	// KindInternal indicates a contract violation inside the engine.
	KindInternal Kind = "INTERNAL"
)

// Error codes organized by kind.
const (
	// Validation errors (100-199)
	ErrCodeUnknownComponent = "ERR_101_UNKNOWN_COMPONENT"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeQueryEmpty       = "ERR_103_QUERY_EMPTY"
	ErrCodeTopKRange        = "ERR_104_TOPK_RANGE"
	ErrCodeChunkOverlap     = "ERR_105_CHUNK_OVERLAP"
	ErrCodeInvalidURI       = "ERR_106_INVALID_URI"

	// Duplicate errors (200-299)
	ErrCodeDuplicateDocument = "ERR_201_DUPLICATE_DOCUMENT"

	// Not-found errors (300-399)
	ErrCodeKBNotFound         = "ERR_301_KB_NOT_FOUND"
	ErrCodeDocumentNotFound   = "ERR_302_DOCUMENT_NOT_FOUND"
	ErrCodeRunNotFound        = "ERR_303_RUN_NOT_FOUND"
	ErrCodeCollectionNotFound = "ERR_304_COLLECTION_NOT_FOUND"

	// Timeout errors (400-499)
	ErrCodeEmbedTimeout  = "ERR_401_EMBED_TIMEOUT"
	ErrCodeSearchTimeout = "ERR_402_SEARCH_TIMEOUT"

	// Backend errors (500-599)
	ErrCodeBlobUnavailable = "ERR_501_BLOB_UNAVAILABLE"
	ErrCodeVectorBackend   = "ERR_502_VECTOR_BACKEND"
	ErrCodeTextBackend     = "ERR_503_TEXT_BACKEND"
	ErrCodeEmbedBackend    = "ERR_504_EMBED_BACKEND"
	ErrCodeMetadataBackend = "ERR_505_METADATA_BACKEND"
	ErrCodeParseFailed     = "ERR_506_PARSE_FAILED"

	// Internal errors (600-699)
	ErrCodeInternal          = "ERR_601_INTERNAL"
	ErrCodeDimensionMismatch = "ERR_602_DIMENSION_MISMATCH"
)

// kindFromCode extracts the kind from an error code.
func kindFromCode(code string) Kind {
	if len(code) < 7 {
		return KindInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_UNKNOWN_COMPONENT".
	switch code[4] {
	case '1':
		return KindValidation
	case '2':
		return KindDuplicate
	case '3':
		return KindNotFound
	case '4':
		return KindTimeout
	case '5':
		return KindBackend
	default:
		return KindInternal
	}
}

// isRetryableCode checks if an error code represents a retryable error.
// Orchestrators do not retry; the flag is for outer callers.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeSearchTimeout,
		ErrCodeBlobUnavailable, ErrCodeEmbedBackend:
		return true
	default:
		return false
	}
}
