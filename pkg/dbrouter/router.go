package dbrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

// Router is a virtual database handle. Every call looks up the tenant code
// bound to its context and runs on a connection from that tenant's pool.
//
// A code with no route is never served from another pool: it fails with
// ErrUnknownTenant unless a Loader opens the route on demand.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]*route
	removals map[string]uint64
	closed   bool
	fallback *route

	loader Loader
	loads  singleflight.Group

	acquireTimeout time.Duration
	drainTimeout   time.Duration
	log            *slog.Logger
}

// New creates an empty Router. Routes are added with AddRoute or opened lazily by a Loader.
func New(opts ...Option) *Router {
	r := &Router{
		routes:         make(map[string]*route),
		removals:       make(map[string]uint64),
		acquireTimeout: 5 * time.Second,
		drainTimeout:   30 * time.Second,
		log:            slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddRoute registers pool under code. The router owns the pool from now on.
func (r *Router) AddRoute(code string, pool Pool) error {
	if code == "" || pool == nil {
		return fmt.Errorf("%w: empty code or nil pool", tenant.ErrInvalidIdentifier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}
	if _, ok := r.routes[code]; ok {
		return fmt.Errorf("%w: %s", ErrRouteExists, code)
	}
	r.routes[code] = newRoute(code, pool)

	r.log.Info("tenant route added", logger.Tenant(code))
	return nil
}

// RemoveRoute unmaps code immediately, so new calls fail with ErrUnknownTenant,
// then waits for leased connections to be released before closing the pool.
//
// A lazy load of code that is still in flight is discarded, even when there
// was no route to remove.
//
// If the leases do not drain before ctx ends or the drain timeout passes,
// RemoveRoute returns ErrDrainTimeout and the pool is closed in the background
// once the last lease is released.
func (r *Router) RemoveRoute(ctx context.Context, code string) error {
	r.mu.Lock()
	r.removals[code]++
	rt, ok := r.routes[code]
	if ok {
		delete(r.routes, code)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, code)
	}

	r.log.InfoContext(ctx, "tenant route removed", logger.Tenant(code))
	return r.drainAndClose(ctx, rt, true)
}

// HasRoute reports whether code currently has a route.
func (r *Router) HasRoute(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[code]
	return ok
}

// Codes returns the routed tenant codes in sorted order.
func (r *Router) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.routes))
}

// Stats returns the number of leased connections per routed code.
func (r *Router) Stats() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int64, len(r.routes))
	for code, rt := range r.routes {
		stats[code] = rt.active.Load()
	}
	return stats
}

// Ping checks the pool the context resolves to.
func (r *Router) Ping(ctx context.Context) error {
	rt, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	defer rt.end()
	return rt.pool.Ping(ctx)
}

// Close unmaps every route, waits for leases to drain and closes the routed pools.
// The default pool is drained but left open for its owner to close.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	routes := r.routes
	r.routes = make(map[string]*route)
	r.mu.Unlock()

	var errs []error
	for _, rt := range routes {
		if err := r.drainAndClose(ctx, rt, true); err != nil {
			errs = append(errs, err)
		}
	}
	if r.fallback != nil {
		if err := r.drainAndClose(ctx, r.fallback, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) drainAndClose(ctx context.Context, rt *route, closePool bool) error {
	finish := func() {
		if closePool {
			rt.pool.Close()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.drainTimeout)
	defer cancel()

	done := rt.drained()
	select {
	case <-done:
		finish()
		return nil
	case <-ctx.Done():
		go func() {
			<-done
			finish()
		}()
		r.log.Warn("tenant pool did not drain in time",
			logger.Tenant(rt.code),
			slog.Int64("leases", rt.active.Load()),
		)
		return fmt.Errorf("%w: %s", ErrDrainTimeout, rt.code)
	}
}

// resolve returns the route for ctx with one lease taken.
func (r *Router) resolve(ctx context.Context) (*route, error) {
	code, bound := tenant.CodeFromContext(ctx)
	if !bound {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed {
			return nil, ErrRouterClosed
		}
		if r.fallback == nil {
			return nil, ErrNoTenantBound
		}
		r.fallback.begin()
		return r.fallback, nil
	}

	if rt, err := r.lookup(code); rt != nil || err != nil {
		return rt, err
	}

	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, code)
	}

	// Concurrent misses for the same code open a single pool.
	_, err, _ := r.loads.Do(code, func() (any, error) {
		return nil, r.load(ctx, code)
	})
	if err != nil {
		return nil, err
	}

	if rt, err := r.lookup(code); rt != nil || err != nil {
		return rt, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, code)
}

// load opens a route through the loader. When RemoveRoute runs for the code
// while the loader works, the opened pool may describe a store that was just
// deactivated, so it is dropped and the loader asked once more.
func (r *Router) load(ctx context.Context, code string) error {
	for range 2 {
		if r.HasRoute(code) {
			return nil
		}

		gen := r.removal(code)
		pool, err := r.loader.LoadRoute(ctx, code)
		if err != nil {
			return err
		}

		err = r.addLoaded(code, pool, gen)
		switch {
		case err == nil, errors.Is(err, ErrRouteExists):
			return nil
		case errors.Is(err, errRemovedWhileLoading):
			r.log.InfoContext(ctx, "tenant route removed while loading, reloading", logger.Tenant(code))
		default:
			return err
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTenant, code)
}

var errRemovedWhileLoading = errors.New("route removed while loading")

func (r *Router) removal(code string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.removals[code]
}

// addLoaded registers a pool opened by the loader, unless RemoveRoute ran for
// the code since gen was read. The pool is closed whenever it is not registered.
func (r *Router) addLoaded(code string, pool Pool, gen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch _, exists := r.routes[code]; {
	case r.closed:
		err = ErrRouterClosed
	case r.removals[code] != gen:
		err = errRemovedWhileLoading
	case exists:
		err = fmt.Errorf("%w: %s", ErrRouteExists, code)
	default:
		r.routes[code] = newRoute(code, pool)
		r.log.Info("tenant route loaded", logger.Tenant(code))
		return nil
	}
	pool.Close()
	return err
}

func (r *Router) lookup(code string) (*route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRouterClosed
	}
	rt, ok := r.routes[code]
	if !ok {
		return nil, nil
	}
	rt.begin()
	return rt, nil
}

// lease resolves the route for ctx and acquires one connection from it.
func (r *Router) lease(ctx context.Context) (Conn, error) {
	rt, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}

	acquireCtx := ctx
	if r.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, r.acquireTimeout)
		defer cancel()
	}

	conn, err := rt.pool.Acquire(acquireCtx)
	if err != nil {
		rt.end()
		return nil, r.classify(ctx, rt, err)
	}

	return &leasedConn{Conn: conn, done: rt.end}, nil
}

// classify maps an acquire failure. A timeout counts as exhaustion only when
// the pool reports every connection in use (or cannot tell); a timeout with
// spare capacity means the server is slow to accept connections.
func (r *Router) classify(ctx context.Context, rt *route, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("acquire connection for %q: %w", rt.code, ctx.Err())
	}
	if pg.IsTooManyConnectionsError(err) || (errors.Is(err, context.DeadlineExceeded) && saturated(rt.pool)) {
		return fmt.Errorf("%w: %q: %w", ErrPoolExhausted, rt.code, err)
	}
	return fmt.Errorf("%w: %q: %w", ErrConnectionFailed, rt.code, err)
}

func saturated(p Pool) bool {
	s, ok := p.(Saturator)
	return !ok || s.Saturated()
}

// Exec runs sql on the bound tenant's database.
func (r *Router) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	conn, err := r.lease(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer conn.Release()
	return conn.Exec(ctx, sql, args...)
}

// Query runs sql on the bound tenant's database. The connection is held
// until the rows are closed or fully read.
func (r *Router) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	conn, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return &leasedRows{Rows: rows, release: conn.Release}, nil
}

// QueryRow runs sql on the bound tenant's database. The connection is held until Scan.
func (r *Router) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	conn, err := r.lease(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return &leasedRow{Row: conn.QueryRow(ctx, sql, args...), release: conn.Release}
}

// Begin starts a transaction on the bound tenant's database. The connection
// is held until Commit or Rollback.
func (r *Router) Begin(ctx context.Context) (pgx.Tx, error) {
	conn, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return &leasedTx{Tx: tx, release: conn.Release}, nil
}

// Do runs fn on a single connection of the bound tenant's database.
func (r *Router) Do(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	conn, err := r.lease(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(ctx, conn)
}

// InTx runs fn inside a transaction on the bound tenant's database,
// committing on success and rolling back on error.
func (r *Router) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
