package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Admission errors
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrStorageUnavailable = errors.New("security storage unavailable")
	ErrInvalidPolicy      = errors.New("invalid rate limit policy")
	ErrAuditWriteFailed   = errors.New("audit event could not be recorded")
)
