package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrNoSources
	ErrStoreUnavailable
	ErrUploadFailed
	ErrAIUnavailable
)
