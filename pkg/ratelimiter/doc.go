// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis stores, plus net/http middleware.
//
// The service uses it to keep one busy store from starving the shared
// process: every request on a store route takes a token from that store's
// bucket.
//
//	b, _ := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "storefleet:ratelimit:"), cfg)
//	r.Use(ratelimiter.Middleware(b, func(r *http.Request) string {
//		code, _ := tenant.CodeFromContext(r.Context())
//		return code
//	}))
//
// A bucket holds at most Capacity tokens and gains RefillRate tokens per
// RefillInterval. A request that does not fit is refused without draining the
// bucket, so a client hammering a full limit recovers as soon as tokens come
// back.
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset on every checked response and Retry-After on refusals.
// When the store fails the request passes and the failure is logged.
package ratelimiter
