package dbrouter

import (
	"sync"
	"sync/atomic"
)

// route is one entry of the routing table. leases counts connections handed
// out and not yet released; a removed route is closed only once it drops to zero.
type route struct {
	code   string
	pool   Pool
	leases sync.WaitGroup
	active atomic.Int64
}

func newRoute(code string, pool Pool) *route {
	return &route{code: code, pool: pool}
}

// begin must be called while the route is reachable from the table,
// i.e. under the router's read lock.
func (rt *route) begin() {
	rt.leases.Add(1)
	rt.active.Add(1)
}

func (rt *route) end() {
	rt.active.Add(-1)
	rt.leases.Done()
}

// drained is closed once every outstanding lease has ended.
func (rt *route) drained() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		rt.leases.Wait()
		close(ch)
	}()
	return ch
}
