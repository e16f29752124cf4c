package redis

import "errors"

// Connection errors are joined with the go-redis error that caused them.
var (
	ErrFailedToParseRedisConnString = errors.New("redis: invalid connection url")
	ErrRedisNotReady                = errors.New("redis: no successful ping before retries ran out")
	ErrEmptyConnectionURL           = errors.New("redis: connection url is empty")
	ErrHealthcheckFailed            = errors.New("redis: ping failed")
)

// Storage and Channel errors.
var (
	ErrUpdateConflict     = errors.New("redis: key kept changing during update")
	ErrSubscribeFailed    = errors.New("redis: subscription not confirmed")
	ErrSubscriptionClosed = errors.New("redis: subscription closed by client")
)
