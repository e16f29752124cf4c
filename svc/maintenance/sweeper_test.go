package maintenance_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/fanout"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/maintenance"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

var errStoreDown = errors.New("store database unreachable")

// storeDB answers Exec for whichever store is bound to the context.
type storeDB struct {
	mu      sync.Mutex
	updated map[string]int
	failing map[string]bool
}

func newStoreDB(failing ...string) *storeDB {
	db := &storeDB{updated: map[string]int{}, failing: map[string]bool{}}
	for _, code := range failing {
		db.failing[code] = true
	}
	return db
}

func (d *storeDB) Exec(ctx context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	code, ok := pkgtenant.CodeFromContext(ctx)
	if !ok {
		return pgconn.CommandTag{}, dbrouter.ErrNoTenantBound
	}
	if d.failing[code] {
		return pgconn.CommandTag{}, errStoreDown
	}
	d.mu.Lock()
	d.updated[code]++
	d.mu.Unlock()
	return pgconn.NewCommandTag("UPDATE 2"), nil
}

func (d *storeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (d *storeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (d *storeDB) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("not used") }

func (d *storeDB) sweeps(code string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updated[code]
}

type registryDeactivator struct {
	reg  tenant.Registry
	fail map[string]bool
}

func (r registryDeactivator) Deactivate(ctx context.Context, code string) (*tenant.Record, error) {
	if r.fail[code] {
		return nil, errors.New("deactivate failed")
	}
	return r.reg.Transition(ctx, code, tenant.EventDeactivate)
}

func seed(t *testing.T, reg *tenant.MemoryRegistry, now time.Time) {
	t.Helper()

	ctx := context.Background()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	for _, r := range []*tenant.Record{
		{Name: "A", Code: "store-a", Status: tenant.StatusActive},
		{Name: "B", Code: "store-b", Status: tenant.StatusActive, SubscriptionEnd: &future},
		{Name: "C", Code: "store-c", Status: tenant.StatusActive},
		{Name: "D", Code: "store-d", Status: tenant.StatusDeactivated},
		{Name: "E", Code: "store-e", Status: tenant.StatusActive, SubscriptionEnd: &past},
	} {
		require.NoError(t, reg.Create(ctx, r))
	}
}

func TestDeactivateExpiredPromotions(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			t.Parallel()

			now := time.Now()
			reg := tenant.NewMemoryRegistry()
			seed(t, reg, now)
			db := newStoreDB("store-b")

			s := maintenance.NewSweeper(reg, db, registryDeactivator{reg: reg},
				maintenance.WithConfig(maintenance.Config{Concurrency: concurrency}),
				maintenance.WithClock(func() time.Time { return now }),
			)

			ctx := context.Background()
			res, err := s.DeactivateExpiredPromotions(ctx)

			var partial *fanout.PartialError[int64]
			require.ErrorAs(t, err, &partial)
			assert.ErrorIs(t, partial.Err("store-b"), errStoreDown)

			codes := make([]string, 0, len(res.Items))
			for _, it := range res.Items {
				codes = append(codes, it.Code)
				assert.Equal(t, int64(2), it.Value)
			}
			assert.Equal(t, []string{"store-a", "store-c", "store-e"}, codes)
			assert.Zero(t, db.sweeps("store-d"))

			_, bound := pkgtenant.CodeFromContext(ctx)
			assert.False(t, bound)
		})
	}
}

func TestDeactivateExpiredSubscriptions(t *testing.T) {
	t.Parallel()

	now := time.Now()
	reg := tenant.NewMemoryRegistry()
	seed(t, reg, now)

	s := maintenance.NewSweeper(reg, newStoreDB(), registryDeactivator{reg: reg},
		maintenance.WithClock(func() time.Time { return now }),
	)

	codes, err := s.DeactivateExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"store-e"}, codes)

	rec, err := reg.FindByCode(context.Background(), "store-e")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeactivated, rec.Status)

	rec, err = reg.FindByCode(context.Background(), "store-b")
	require.NoError(t, err)
	assert.True(t, rec.Active())
}

func TestSweep(t *testing.T) {
	t.Parallel()

	now := time.Now()
	reg := tenant.NewMemoryRegistry()
	seed(t, reg, now)
	db := newStoreDB()

	s := maintenance.NewSweeper(reg, db, registryDeactivator{reg: reg, fail: map[string]bool{"store-e": true}},
		maintenance.WithClock(func() time.Time { return now }),
	)

	err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, db.sweeps("store-a"))
	assert.Equal(t, 1, db.sweeps("store-e"))
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry()
	seed(t, reg, time.Now())
	db := newStoreDB()

	s := maintenance.NewSweeper(reg, db, registryDeactivator{reg: reg},
		maintenance.WithConfig(maintenance.Config{Interval: 10 * time.Millisecond, RunOnStart: true}),
	)

	require.ErrorIs(t, s.Stop(), maintenance.ErrNotStarted)
	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), maintenance.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return db.sweeps("store-a") >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	after := db.sweeps("store-a")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, db.sweeps("store-a"))
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry()
	db := newStoreDB()
	s := maintenance.NewSweeper(reg, db, registryDeactivator{reg: reg},
		maintenance.WithConfig(maintenance.Config{Interval: time.Hour}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx)() }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// routeTable records removals and can fail or time out per store.
type routeTable struct {
	mu      sync.Mutex
	codes   []string
	removed []string
	fail    map[string]error
}

func (r *routeTable) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func (r *routeTable) RemoveRoute(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[code]; err != nil {
		return err
	}
	r.removed = append(r.removed, code)
	return nil
}

func (r *routeTable) removedCodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func TestReconcileRoutes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := tenant.NewMemoryRegistry()
	seed(t, reg, time.Now())

	t.Run("without routes does nothing", func(t *testing.T) {
		t.Parallel()

		s := maintenance.NewSweeper(reg, newStoreDB(), registryDeactivator{reg: reg})
		removed, err := s.ReconcileRoutes(ctx)
		require.NoError(t, err)
		assert.Empty(t, removed)
	})

	t.Run("removes routes of inactive and missing stores", func(t *testing.T) {
		t.Parallel()

		routes := &routeTable{codes: []string{"store-a", "store-d", "store-gone", "store-c"}}
		s := maintenance.NewSweeper(reg, newStoreDB(), registryDeactivator{reg: reg}, maintenance.WithRoutes(routes))

		removed, err := s.ReconcileRoutes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"store-d", "store-gone"}, removed)
		assert.Equal(t, []string{"store-d", "store-gone"}, routes.removedCodes())
	})

	t.Run("draining and vanished routes", func(t *testing.T) {
		t.Parallel()

		routes := &routeTable{
			codes: []string{"store-d", "store-x", "store-y"},
			fail: map[string]error{
				"store-d": dbrouter.ErrDrainTimeout,
				"store-x": dbrouter.ErrUnknownTenant,
				"store-y": errors.New("router closed"),
			},
		}
		s := maintenance.NewSweeper(reg, newStoreDB(), registryDeactivator{reg: reg}, maintenance.WithRoutes(routes))

		removed, err := s.ReconcileRoutes(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store-y")
		assert.NotContains(t, err.Error(), "store-x")
		assert.Equal(t, []string{"store-d"}, removed)
	})
}

func TestSweeper_ReconcilesOnRouteTicker(t *testing.T) {
	t.Parallel()

	reg := tenant.NewMemoryRegistry()
	seed(t, reg, time.Now())
	routes := &routeTable{codes: []string{"store-d"}}

	s := maintenance.NewSweeper(reg, newStoreDB(), registryDeactivator{reg: reg},
		maintenance.WithConfig(maintenance.Config{Interval: time.Hour, RouteCheckInterval: 10 * time.Millisecond}),
		maintenance.WithRoutes(routes),
	)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	assert.Eventually(t, func() bool { return len(routes.removedCodes()) > 0 }, time.Second, 5*time.Millisecond)
}
