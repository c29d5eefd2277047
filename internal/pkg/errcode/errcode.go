package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrAIUnavailable
	ErrUnsupportedType
	ErrExtraction
	ErrDuplicateDocument
	ErrIngestionFailed
	ErrGeneration
	ErrTransient
)
