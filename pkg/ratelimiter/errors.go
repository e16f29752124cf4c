package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid rate limit configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrLimitExceeded     = errors.New("rate limit exceeded")
	ErrStoreUnavailable  = errors.New("rate limit store unavailable")
)
