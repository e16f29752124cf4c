package dbrouter

import (
	"context"

	"github.com/dmitrymomot/storefleet/pkg/pg"
)

// Loader opens a pool for a code that has no route yet.
// Implementations return ErrUnknownTenant or ErrTenantInactive (possibly wrapped)
// when the code must not be routed.
type Loader interface {
	LoadRoute(ctx context.Context, code string) (Pool, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, code string) (Pool, error)

func (f LoaderFunc) LoadRoute(ctx context.Context, code string) (Pool, error) {
	return f(ctx, code)
}

// Opener opens per-tenant pgx pools with shared limits.
type Opener struct {
	base pg.Config
}

// NewOpener returns an Opener applying base's pool limits to every tenant pool.
func NewOpener(base pg.Config) *Opener {
	return &Opener{base: base}
}

// Open connects to the database at c.
func (o *Opener) Open(ctx context.Context, c pg.Coordinates) (Pool, error) {
	pool, err := pg.Connect(ctx, o.base.WithConnectionString(c.ConnString()))
	if err != nil {
		return nil, err
	}
	return NewPgxPool(pool), nil
}

// PoolOpener opens a pool from database coordinates.
type PoolOpener interface {
	Open(ctx context.Context, c pg.Coordinates) (Pool, error)
}
