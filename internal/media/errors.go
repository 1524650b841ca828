package media

import "errors"

// Error categories for the upload pipeline. Every stage wraps its cause with
// one of these so callers can branch with errors.Is.
var (
	// ErrValidation is returned when required input is missing.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation does not apply to a record.
	ErrInvalidState = errors.New("invalid record state")

	// ErrIO is returned when a local file cannot be opened, read, written or stat'ed.
	ErrIO = errors.New("local file i/o failed")

	// ErrImageProcessing is returned when an image cannot be decoded or encoded.
	ErrImageProcessing = errors.New("image processing failed")

	// ErrStorage is returned when the object store rejects a put.
	ErrStorage = errors.New("object storage failed")
)
