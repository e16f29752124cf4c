package dbrouter_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
)

// fakePool answers every statement with its own name, so tests can tell
// which physical database served a call.
type fakePool struct {
	name       string
	acquireErr error
	block      chan struct{} // when set, Acquire waits on it or ctx
	saturated  atomic.Bool   // reported through Saturated

	acquired atomic.Int64
	released atomic.Int64
	closed   atomic.Bool
}

func newFakePool(name string) *fakePool {
	return &fakePool{name: name}
}

func (p *fakePool) Acquire(ctx context.Context) (dbrouter.Conn, error) {
	if p.closed.Load() {
		return nil, context.Canceled
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired.Add(1)
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) Ping(context.Context) error { return p.acquireErr }

func (p *fakePool) Close() { p.closed.Store(true) }

func (p *fakePool) Saturated() bool { return p.saturated.Load() }

func (p *fakePool) outstanding() int64 { return p.acquired.Load() - p.released.Load() }

type fakeConn struct {
	pool *fakePool
	once sync.Once
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(c.pool.name), nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeRows{values: []string{c.pool.name, c.pool.name}}, nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{value: c.pool.name}
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (c *fakeConn) Release() {
	c.once.Do(func() { c.pool.released.Add(1) })
}

type fakeRow struct {
	value string
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.value
	return nil
}

type fakeRows struct {
	pgx.Rows
	values []string
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.values) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() { r.closed = true }

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}
