// Package apperr defines the error taxonomy shared by the pipeline, retrieval,
// chat and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how callers should react to it.
type Kind string

const (
	// KindValidation means the caller sent something unacceptable. Never retried.
	KindValidation Kind = "validation"
	// KindTransient means an external dependency failed in a way worth retrying.
	KindTransient Kind = "transient"
	// KindPermanent means an external dependency rejected the input for good.
	KindPermanent Kind = "permanent"
	// KindInvalidTransition means a task state change is not allowed from the current state.
	KindInvalidTransition Kind = "invalid_transition"
	// KindNotFound means the referenced record does not exist.
	KindNotFound Kind = "not_found"
	// KindInternal covers everything unclassified.
	KindInternal Kind = "internal"
)

// Error is the application error type. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation           = define(KindValidation, "VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInvalidArgument      = define(KindValidation, "INVALID_ARGUMENT", "invalid argument", http.StatusBadRequest)
	ErrInvalidConfiguration = define(KindValidation, "INVALID_CONFIGURATION", "invalid configuration", http.StatusBadRequest)
	ErrPayloadTooLarge      = define(KindValidation, "PAYLOAD_TOO_LARGE", "payload too large", http.StatusRequestEntityTooLarge)
	ErrUnsupportedType      = define(KindValidation, "UNSUPPORTED_TYPE", "unsupported content type", http.StatusUnsupportedMediaType)

	ErrTransientExternal = define(KindTransient, "TRANSIENT_EXTERNAL", "external service unavailable", http.StatusBadGateway)
	ErrRateLimited       = define(KindTransient, "RATE_LIMITED", "external service rate limited", http.StatusServiceUnavailable)
	ErrTimeout           = define(KindTransient, "TIMEOUT", "external service timed out", http.StatusGatewayTimeout)
	ErrBusy              = define(KindTransient, "SERVICE_BUSY", "too many requests in progress", http.StatusServiceUnavailable)

	ErrInvalidInput      = define(KindPermanent, "INVALID_INPUT", "external service rejected input", http.StatusBadGateway)
	ErrExtraction        = define(KindPermanent, "EXTRACTION_ERROR", "text extraction failed", http.StatusUnprocessableEntity)
	ErrUnsupportedFormat = define(KindPermanent, "UNSUPPORTED_FORMAT", "unsupported document format", http.StatusUnprocessableEntity)
	ErrCorruptFile       = define(KindPermanent, "CORRUPT_FILE", "document could not be parsed", http.StatusUnprocessableEntity)

	ErrEmbeddingUnavailable = define(KindTransient, "EMBEDDING_UNAVAILABLE", "embedding service unavailable", http.StatusServiceUnavailable)
	ErrLLMUnavailable       = define(KindTransient, "LLM_UNAVAILABLE", "language model unavailable", http.StatusServiceUnavailable)

	ErrInvalidTransition = define(KindInvalidTransition, "INVALID_TRANSITION", "invalid state transition", http.StatusConflict)
	ErrNotFound          = define(KindNotFound, "NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInternal          = define(KindInternal, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

func define(kind Kind, code, message string, status int) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

// New returns a copy of base with a formatted message.
func New(base *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
		Status:  base.Status,
	}
}

// Wrap returns a copy of base carrying err as its cause.
func Wrap(base *Error, err error, format string, args ...interface{}) *Error {
	e := New(base, format, args...)
	e.Err = err
	return e
}

// As extracts the outermost *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err, or KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
