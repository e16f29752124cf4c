package dbrouter

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the data-access surface shared by a single database and the Router.
// *pgxpool.Pool, *pgxpool.Conn and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Conn is one connection leased from a Pool.
type Conn interface {
	Querier
	Release()
}

// Pool is a managed set of connections to one physical database.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Saturator is implemented by pools that can tell whether every connection
// they may open is checked out. The router uses it to tell a full pool from a
// slow or unreachable server when an acquire times out.
type Saturator interface {
	Saturated() bool
}

type pgxPool struct {
	pool *pgxpool.Pool
}

// NewPgxPool adapts a pgx pool to the Pool interface.
func NewPgxPool(pool *pgxpool.Pool) Pool {
	return &pgxPool{pool: pool}
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *pgxPool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *pgxPool) Close() { p.pool.Close() }

func (p *pgxPool) Saturated() bool {
	s := p.pool.Stat()
	return s.AcquiredConns() >= s.MaxConns()
}
