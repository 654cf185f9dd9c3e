package library

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument indicates that a document or binary failed validation before any write.
	ErrInvalidDocument = errors.New("library: invalid document")
	// ErrInvalidName indicates an empty or oversized title or folder name.
	ErrInvalidName = errors.New("library: invalid name")
	// ErrFileTooLarge indicates an upload above the configured maximum size.
	ErrFileTooLarge = errors.New("library: file exceeds maximum upload size")
	// ErrContentUnavailable indicates that a document has no stored binary.
	ErrContentUnavailable = errors.New("library: content unavailable")

	errMissingRecords    = errors.New("record store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRenderer   = errors.New("page renderer is required")
)

// ServiceError annotates validation failures raised by the library service with an operation code.
// Record store errors are returned without this wrapper.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
