package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a flowgen error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"   // 400
	ErrValidation     ErrorCode = "VALIDATION"        // 400 (service rejected the source)
	ErrNotFound       ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrSuperseded     ErrorCode = "SUPERSEDED"        // 409
	ErrArchiveTooBig  ErrorCode = "ARCHIVE_TOO_LARGE" // 413
	ErrArchive        ErrorCode = "ARCHIVE"           // 422
	ErrCancelled      ErrorCode = "CANCELLED"         // 499
	ErrInternal       ErrorCode = "INTERNAL"          // 500
	ErrTransport      ErrorCode = "TRANSPORT"         // 503
)

// Fixed user-facing messages for failures without a service diagnostic.
const (
	MsgServiceUnreachable = "Backend not reachable"
	MsgFallbackDiagnostic = "Syntax Error"
	MsgUploadRejected     = "Server error"
)

// FlowError represents a structured error with code, status, and details.
type FlowError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *FlowError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *FlowError {
	return &FlowError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewValidation creates an error for a request the service parsed but rejected.
// An empty diagnostic is replaced by the fallback message.
func NewValidation(diagnostic string, status int) *FlowError {
	if diagnostic == "" {
		diagnostic = MsgFallbackDiagnostic
	}
	return &FlowError{
		Code:    ErrValidation,
		Status:  400,
		Message: diagnostic,
		Details: map[string]any{"service_status": status},
	}
}

// NewTransport creates a 503 error for an unreachable service.
func NewTransport(err error) *FlowError {
	return &FlowError{
		Code:    ErrTransport,
		Status:  503,
		Message: MsgServiceUnreachable,
		cause:   err,
	}
}

// NewArchive creates a 422 error for corrupt or unreadable archive bytes.
func NewArchive(err error) *FlowError {
	msg := "archive is corrupt or unreadable"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &FlowError{
		Code:    ErrArchive,
		Status:  422,
		Message: msg,
		cause:   err,
	}
}

// NewArchiveTooLarge creates a 413 error when decompressed content exceeds a limit.
func NewArchiveTooLarge(what string, max int64) *FlowError {
	return &FlowError{
		Code:    ErrArchiveTooBig,
		Status:  413,
		Message: fmt.Sprintf("%s exceeds maximum size of %d bytes", what, max),
		Details: map[string]any{"max_bytes": max, "subject": what},
	}
}

// NewSuperseded creates a 409 error for a result whose generation is no longer current.
func NewSuperseded(generation, current uint64) *FlowError {
	return &FlowError{
		Code:    ErrSuperseded,
		Status:  409,
		Message: fmt.Sprintf("generation %d superseded by %d", generation, current),
		Details: map[string]any{"generation": generation, "current": current},
	}
}

// NewNotFound creates a 404 error for a missing upload, group, or handle.
func NewNotFound(kind, identifier string) *FlowError {
	return &FlowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing local file.
func NewFileNotFound(path string) *FlowError {
	return &FlowError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates a 499 error for an operation abandoned by its context.
func NewCancelled(operation string) *FlowError {
	return &FlowError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *FlowError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &FlowError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a FlowError with the given code.
func Is(err error, code ErrorCode) bool {
	var fErr *FlowError
	if stderrors.As(err, &fErr) {
		return fErr.Code == code
	}
	return false
}

// As returns the FlowError in err's chain, if any.
func As(err error) (*FlowError, bool) {
	var fErr *FlowError
	if stderrors.As(err, &fErr) {
		return fErr, true
	}
	return nil, false
}
