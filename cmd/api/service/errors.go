package service

import (
	"errors"
	"fmt"
)

// Errors the handlers translate into HTTP status codes.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("access denied")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid request")
)

// RateLimitError rejects a run start that exceeds the caller's budget.
// Handlers surface RetryAfterSeconds in the Retry-After header.
type RateLimitError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}
