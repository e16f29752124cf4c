package provisioning_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// fakeAdmin keeps databases per server, keyed "host/name".
type fakeAdmin struct {
	mu        sync.Mutex
	databases map[string]bool
	createErr error
	dropErr   error
	creates   int
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{databases: map[string]bool{}}
}

func (a *fakeAdmin) CreateDatabase(_ context.Context, c pg.Coordinates) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	if a.createErr != nil {
		return a.createErr
	}
	key := c.Host + "/" + c.Database
	if a.databases[key] {
		return pg.ErrDatabaseExists
	}
	a.databases[key] = true
	return nil
}

func (a *fakeAdmin) DropDatabase(_ context.Context, c pg.Coordinates) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dropErr != nil {
		return a.dropErr
	}
	delete(a.databases, c.Host+"/"+c.Database)
	return nil
}

func (a *fakeAdmin) setDropErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropErr = err
}

// exists reports whether name exists on the default test host.
func (a *fakeAdmin) exists(name string) bool {
	return a.existsOn("db.internal", name)
}

func (a *fakeAdmin) existsOn(host, name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.databases[host+"/"+name]
}

type fakePool struct {
	closed atomic.Bool
}

func (p *fakePool) Acquire(context.Context) (dbrouter.Conn, error) {
	return nil, errors.New("fake pool has no connections")
}

func (p *fakePool) Ping(context.Context) error {
	if p.closed.Load() {
		return errors.New("pool closed")
	}
	return nil
}

func (p *fakePool) Close() { p.closed.Store(true) }

type fakeOpener struct {
	mu     sync.Mutex
	failOn map[string]error
	pools  []*fakePool

	// beforeOpen, when set before the opener is shared, runs ahead of every open.
	beforeOpen func(c pg.Coordinates)
}

func (o *fakeOpener) Open(_ context.Context, c pg.Coordinates) (dbrouter.Pool, error) {
	if o.beforeOpen != nil {
		o.beforeOpen(c)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failOn[c.Database]; err != nil {
		return nil, err
	}
	p := &fakePool{}
	o.pools = append(o.pools, p)
	return p, nil
}

type fakeMigrator struct {
	mu    sync.Mutex
	err   error
	hook  func()
	calls []string
}

func (m *fakeMigrator) Migrate(_ context.Context, c pg.Coordinates) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c.Database)
	if m.hook != nil {
		m.hook()
	}
	if m.err != nil {
		return nil, m.err
	}
	return []int64{1, 2}, nil
}

// fakeAccounts stores accounts per bound tenant code.
type fakeAccounts struct {
	mu        sync.Mutex
	byTenant  map[string]map[uuid.UUID]*tenant.Owner
	createErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byTenant: map[string]map[uuid.UUID]*tenant.Owner{}}
}

func (f *fakeAccounts) CreateOwnerAccount(ctx context.Context, o *tenant.Owner) error {
	code, ok := pkgtenant.CodeFromContext(ctx)
	if !ok {
		return dbrouter.ErrNoTenantBound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byTenant[code] == nil {
		f.byTenant[code] = map[uuid.UUID]*tenant.Owner{}
	}
	c := *o
	f.byTenant[code][o.ID] = &c
	return nil
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	code, ok := pkgtenant.CodeFromContext(ctx)
	if !ok {
		return dbrouter.ErrNoTenantBound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byTenant[code], id)
	return nil
}

func (f *fakeAccounts) count(code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byTenant[code])
}

// ownerRaceRegistry reports no owner conflict up front but rejects CreateOwner,
// as when another provisioning claims the username in between.
type ownerRaceRegistry struct {
	*tenant.MemoryRegistry
}

func (r ownerRaceRegistry) CreateOwner(context.Context, *tenant.Owner) error {
	return &tenant.ConflictError{Field: tenant.FieldUsername, Value: "taken"}
}
