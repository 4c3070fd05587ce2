// apperror/errors.go
package apperror

import (
	"errors"
	"fmt"
)

// ErrNoPeriod is returned when a document header carries no "Month YYYY" token.
var ErrNoPeriod = errors.New("no reporting period in document header")

// TransportError is a failed network fetch. It is not retried and aborts the
// category that requested the document.
type TransportError struct {
	URL     string
	Reason  string
	Wrapped error
}

func (e *TransportError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("transport error for URL '%s': %s: %v", e.URL, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("transport error for URL '%s': %s", e.URL, e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Wrapped }

// NewTransportError creates a new transport error
func NewTransportError(url, reason string, wrapped error) *TransportError {
	return &TransportError{URL: url, Reason: reason, Wrapped: wrapped}
}

// ParseError means a document could not be used. The document is skipped,
// the run continues.
type ParseError struct {
	URL     string
	Reason  string
	Wrapped error
}

func (e *ParseError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("parse error for '%s': %s: %v", e.URL, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("parse error for '%s': %s", e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Wrapped }

// NewParseError creates a new parse error
func NewParseError(url, reason string, wrapped error) *ParseError {
	return &ParseError{URL: url, Reason: reason, Wrapped: wrapped}
}

// StorageError is a local I/O failure (cache or output directory). Fatal for the run.
type StorageError struct {
	Path    string
	Op      string
	Wrapped error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Wrapped)
}

func (e *StorageError) Unwrap() error { return e.Wrapped }

// NewStorageError creates a new storage error
func NewStorageError(op, path string, wrapped error) *StorageError {
	return &StorageError{Path: path, Op: op, Wrapped: wrapped}
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsParse reports whether err is or wraps a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
