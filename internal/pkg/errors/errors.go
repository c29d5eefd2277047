package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalid           = errors.New("invalid")
	ErrConflict          = errors.New("conflict")
	ErrTooMany           = errors.New("too many requests")
	ErrInternal          = errors.New("internal")
	ErrTransient         = errors.New("transient storage error")
	ErrUnsupportedType   = errors.New("unsupported document type")
	ErrExtraction        = errors.New("text extraction failed")
	ErrDuplicateDocument = errors.New("duplicate document")
	ErrIngestionFailed   = errors.New("ingestion failed")
	ErrGeneration        = errors.New("generation service error")
	ErrAIUnavailable     = errors.New("ai provider unavailable")
)

// IngestionFailedError reports a failure after the document row was created.
type IngestionFailedError struct {
	DocumentID string
	Cause      error
}

func (e *IngestionFailedError) Error() string {
	return fmt.Sprintf("ingestion failed, document_id=%s: %v", e.DocumentID, e.Cause)
}

func (e *IngestionFailedError) Unwrap() error {
	return e.Cause
}

func (e *IngestionFailedError) Is(target error) bool {
	return target == ErrIngestionFailed
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateDocument)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
