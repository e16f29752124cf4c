// Package dbrouter routes data-access calls to the database of the tenant
// bound to the call's context.
//
// A Router exposes the same Querier surface as a single pgx pool (Exec,
// Query, QueryRow, Begin), so repositories are written once against Querier
// and work unchanged against the master store, one tenant's pool, or the
// Router itself.
//
// # Routing
//
// Each call reads the tenant code from the context (see package tenant):
//
//   - no code bound: the default pool (WithDefault) or ErrNoTenantBound
//   - code with a route: a connection from that tenant's pool
//   - code without a route: the Loader (WithLoader) may open one; otherwise
//     ErrUnknownTenant. A missing route is never served from another pool.
//
// # Route lifecycle
//
// AddRoute and RemoveRoute are safe to call while lookups are in flight.
// RemoveRoute unmaps the code at once and closes the pool only after every
// connection leased from it has been released (drain-then-close). Rows hold
// their connection until closed or fully read, Row until Scan, and
// transactions until Commit or Rollback.
//
// # Failures
//
// Connection acquisition is bounded by the acquire timeout. Exhaustion
// surfaces as ErrPoolExhausted and unreachable databases as
// ErrConnectionFailed; both are retryable (IsRetryable).
package dbrouter
