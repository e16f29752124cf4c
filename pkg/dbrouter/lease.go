package dbrouter

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// leasedConn returns the connection to its pool and ends the route lease exactly once.
type leasedConn struct {
	Conn
	once sync.Once
	done func()
}

func (c *leasedConn) Release() {
	c.once.Do(func() {
		c.Conn.Release()
		c.done()
	})
}

type leasedRows struct {
	pgx.Rows
	release func()
}

func (r *leasedRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.release()
	return false
}

func (r *leasedRows) Close() {
	r.Rows.Close()
	r.release()
}

type leasedRow struct {
	pgx.Row
	release func()
}

func (r *leasedRow) Scan(dest ...any) error {
	defer r.release()
	return r.Row.Scan(dest...)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

// leasedTx ends the lease when the outermost transaction finishes.
// Savepoints started from it are plain pgx.Tx values and do not release.
type leasedTx struct {
	pgx.Tx
	release func()
}

func (t *leasedTx) Commit(ctx context.Context) error {
	defer t.release()
	return t.Tx.Commit(ctx)
}

func (t *leasedTx) Rollback(ctx context.Context) error {
	defer t.release()
	return t.Tx.Rollback(ctx)
}
