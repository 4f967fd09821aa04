package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PipelineError is the structured error type for Ragline.
// Every non-validation failure that reaches a durable record (document
// status, run status) is carried as a PipelineError.
type PipelineError struct {
	// Code is the stable error code (e.g. "ERR_201_DUPLICATE_DOCUMENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Kind is the error kind derived from the code.
	Kind Kind

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool
}

// Error implements the error interface. Details render as sorted
// key=value pairs so structured context survives flattening into
// document and run error strings.
func (e *PipelineError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (", e.Code, e.Message)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Details[k])
	}
	b.WriteByte(')')
	return b.String()
}

// Unwrap returns the underlying cause for error chain support.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches against another PipelineError by code.
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *PipelineError) WithDetail(key, value string) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new PipelineError with the given code and message.
// Kind and the retryable flag are derived from the code.
func New(code string, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Kind:      kindFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PipelineError from an existing error.
func Wrap(code string, err error) *PipelineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a caller-input error.
func Validation(code, message string) *PipelineError {
	return New(code, message, nil)
}

// Duplicate creates a duplicate-document error carrying the existing
// document id and whether the existing copy is authoritative (ssot).
func Duplicate(existingID string, ssot bool) *PipelineError {
	e := New(ErrCodeDuplicateDocument, "document with identical content already exists", nil)
	e.WithDetail("existing_id", existingID)
	if ssot {
		e.WithDetail("existing_is_ssot", "true")
	} else {
		e.WithDetail("existing_is_ssot", "false")
	}
	return e
}

// NotFound creates a not-found error for the given entity code and id.
func NotFound(code, entity, id string) *PipelineError {
	return New(code, fmt.Sprintf("%s %q not found", entity, id), nil).WithDetail("id", id)
}

// Timeout creates a deadline-exceeded error for an operation.
func Timeout(code, operation string, cause error) *PipelineError {
	return New(code, fmt.Sprintf("%s deadline exceeded", operation), cause)
}

// Backend creates a collaborator-fault error.
func Backend(code, message string, cause error) *PipelineError {
	return New(code, message, cause)
}

// Internal creates a contract-violation error.
func Internal(message string, cause error) *PipelineError {
	return New(ErrCodeInternal, message, cause)
}

// KindOf extracts the kind of an error. Non-pipeline errors are Internal.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// CodeOf extracts the code of an error, or empty for non-pipeline errors.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// AsPipeline converts any error to a PipelineError, wrapping unknown
// errors as Internal so durable records always carry a stable code.
func AsPipeline(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err.Error(), err)
}
