package core

// Error codes
const (
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrInvalidContent     = "INVALID_CONTENT_TYPE"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"
	ErrAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrNotFound           = "NOT_FOUND"
	ErrInternalError      = "INTERNAL_ERROR"
)
