// Package requestid tags every request with an identifier that follows it
// through logs. An incoming X-Request-ID header is reused when it is a
// plausible identifier; otherwise a UUID is generated. The identifier is
// echoed in the response header and stored in the request context, where
// LoggerExtractor picks it up for pkg/logger.
package requestid
