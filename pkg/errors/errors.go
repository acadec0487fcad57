// Package errors carries the API error taxonomy. Every error that reaches a
// handler is mapped to one Code, and the Code alone decides the HTTP status
// and what the client is allowed to see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientInventory Code = "INSUFFICIENT_INVENTORY"
	CodeBelowMinimumBlock     Code = "BELOW_MINIMUM_BLOCK"
	CodeTransactionFailure    Code = "TRANSACTION_FAILURE"
	CodeExternalService       Code = "EXTERNAL_SERVICE_ERROR"
)

// Metadata is the client-facing contract of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = 1 << iota
	showDetails = 1 << iota
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&showDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:            meta(http.StatusBadRequest, "validation failed", showDetails),
	CodeUnauthorized:          meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:             meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:              meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:              meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict:         meta(http.StatusUnprocessableEntity, "state transition disallowed", showDetails),
	CodeIdempotency:           meta(http.StatusConflict, "idempotency key reused", showDetails),
	CodeRateLimit:             meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:              meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:            meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|showDetails),
	CodeInsufficientInventory: meta(http.StatusBadRequest, "insufficient inventory", showDetails),
	CodeBelowMinimumBlock:     meta(http.StatusBadRequest, "amount below minimum block", showDetails),
	CodeTransactionFailure:    meta(http.StatusInternalServerError, "transaction failed", retryable),
	CodeExternalService:       meta(http.StatusBadGateway, "external service error", retryable),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is for logs and, for codes that allow
// it, for clients; the cause is never shown to clients.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code is CodeInternal on a nil receiver so callers can switch on it safely.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the structured payload returned under error.details.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
