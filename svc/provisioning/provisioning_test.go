package provisioning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/redis"
	"github.com/dmitrymomot/storefleet/pkg/saga"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/provisioning"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

type env struct {
	registry *tenant.MemoryRegistry
	admin    *fakeAdmin
	router   *dbrouter.Router
	opener   *fakeOpener
	migrator *fakeMigrator
	accounts *fakeAccounts
	svc      *provisioning.Service
}

func newEnv(t *testing.T, mutate ...func(*provisioning.Deps)) *env {
	t.Helper()

	e := &env{
		registry: tenant.NewMemoryRegistry(),
		admin:    newFakeAdmin(),
		opener:   &fakeOpener{failOn: map[string]error{}},
		migrator: &fakeMigrator{},
		accounts: newFakeAccounts(),
	}
	e.router = dbrouter.New(
		dbrouter.WithLoader(tenant.NewRouteLoader(e.registry, e.opener)),
		dbrouter.WithDrainTimeout(100*time.Millisecond),
	)
	t.Cleanup(func() { _ = e.router.Close(context.Background()) })

	deps := provisioning.Deps{
		Registry: e.registry,
		Admin:    e.admin,
		Routes:   e.router,
		Opener:   e.opener,
		Migrator: e.migrator,
		Accounts: e.accounts,
	}
	for _, m := range mutate {
		m(&deps)
	}

	svc, err := provisioning.New(deps, provisioning.WithConfig(provisioning.Config{BcryptCost: bcrypt.MinCost}))
	require.NoError(t, err)
	e.svc = svc
	return e
}

func validRequest(code string) provisioning.Request {
	return provisioning.Request{
		Name: "Store " + code,
		Code: code,
		DB: provisioning.DatabaseRequest{
			Host:     "db.internal",
			Port:     5432,
			Name:     "store_" + code,
			User:     "store_owner",
			Password: "db-secret",
		},
		Owner: provisioning.OwnerRequest{
			Username: "owner_" + code,
			Password: "correct-horse",
			FullName: "Owner " + code,
			Email:    code + "@example.com",
		},
		Quotas: provisioning.QuotasRequest{MaxUsers: 5, MaxItems: 500},
	}
}

// assertNothingLeft checks that no artifact of code survived.
func (e *env) assertNothingLeft(t *testing.T, code string) {
	t.Helper()

	_, err := e.registry.FindByCode(context.Background(), code)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	assert.False(t, e.router.HasRoute(code))
	assert.False(t, e.admin.exists("store_"+code))
	assert.NoError(t, e.registry.OwnerConflict(context.Background(), "owner_"+code, code+"@example.com", ""))
}

func TestNew_MissingDeps(t *testing.T) {
	t.Parallel()

	_, err := provisioning.New(provisioning.Deps{})
	assert.ErrorIs(t, err, provisioning.ErrMissingDependency)
}

func TestProvision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	res, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)

	assert.Equal(t, "acme", res.Code)
	assert.True(t, res.Active)
	assert.Equal(t, "Owner acme", res.OwnerName)
	assert.Equal(t, "acme@example.com", res.OwnerEmail)
	assert.False(t, res.CreatedAt.IsZero())

	rec, err := e.registry.FindByCode(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, rec.Status)
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, 5, rec.Quotas.MaxUsers)

	assert.True(t, e.admin.exists("store_acme"))
	assert.True(t, e.router.HasRoute("acme"))
	assert.Equal(t, []string{"store_acme"}, e.migrator.calls)
	assert.Equal(t, 1, e.accounts.count("acme"))

	owner, err := e.registry.FindOwner(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner_acme", owner.Username)

	require.NoError(t, e.router.Ping(pkgtenant.WithCode(ctx, "acme")))
}

func TestProvision_DuplicateCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
	creates := e.admin.creates

	req := validRequest("acme")
	req.DB.Name = "store_other"
	req.Owner = validRequest("other").Owner

	_, err = e.svc.Provision(ctx, req)
	require.ErrorIs(t, err, tenant.ErrDuplicateTenantCode)

	assert.Equal(t, creates, e.admin.creates)
	assert.False(t, e.admin.exists("store_other"))
	assert.Equal(t, []string{"acme"}, e.router.Codes())

	all, err := e.registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProvision_DuplicateOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)

	req := validRequest("beta")
	req.Owner.Email = "ACME@example.com"
	req.Owner.Phone = "+14155550100"

	_, err = e.svc.Provision(ctx, req)
	require.ErrorIs(t, err, tenant.ErrDuplicateOwnerCredential)

	var conflict *tenant.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, tenant.FieldEmail, conflict.Field)

	_, err = e.registry.FindByCode(ctx, "beta")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestProvision_MigrationFailureRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	errMigrate := errors.New("syntax error in migration")
	e.migrator.err = errMigrate

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.Error(t, err)
	assert.ErrorIs(t, err, provisioning.ErrProvisioningFailed)
	assert.ErrorIs(t, err, errMigrate)

	var perr *provisioning.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provisioning.StepMigrate, perr.Step())
	assert.True(t, perr.RolledBack())
	assert.Equal(t, saga.Compensated, perr.Journal().Outcome(provisioning.StepCreateDatabase))
	assert.Equal(t, saga.Compensated, perr.Journal().Outcome(provisioning.StepRegisterRoute))
	assert.Equal(t, saga.Pending, perr.Journal().Outcome(provisioning.StepCreateOwner))

	e.assertNothingLeft(t, "acme")
	require.Len(t, e.opener.pools, 1)
	assert.Eventually(t, e.opener.pools[0].closed.Load, time.Second, 5*time.Millisecond)

	// rollback is idempotent
	require.NoError(t, e.svc.Resume(ctx, perr))
	e.assertNothingLeft(t, "acme")

	// and the code is free again
	e.migrator.err = nil
	_, err = e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
}

func TestProvision_OwnerRaceRollsBackAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, func(d *provisioning.Deps) {
		d.Registry = ownerRaceRegistry{MemoryRegistry: d.Registry.(*tenant.MemoryRegistry)}
	})

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.ErrorIs(t, err, tenant.ErrDuplicateOwnerCredential)

	var perr *provisioning.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provisioning.StepRegisterOwner, perr.Step())
	assert.Equal(t, saga.Compensated, perr.Journal().Outcome(provisioning.StepCreateOwner))

	assert.Zero(t, e.accounts.count("acme"))
	e.assertNothingLeft(t, "acme")
}

func TestProvision_IncompleteRollbackCanResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.migrator.err = errors.New("migration failed")
	errDrop := errors.New("database is being accessed by other users")
	e.admin.setDropErr(errDrop)

	_, err := e.svc.Provision(ctx, validRequest("acme"))

	var perr *provisioning.Error
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.RolledBack())
	assert.ErrorIs(t, err, saga.ErrCompensationFailed)
	assert.Equal(t, saga.CompensationFailed, perr.Journal().Outcome(provisioning.StepCreateDatabase))
	assert.True(t, e.admin.exists("store_acme"))

	// the record is still compensated even though the drop failed before it
	_, err = e.registry.FindByCode(ctx, "acme")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

	assert.Error(t, e.svc.Resume(ctx, perr))

	e.admin.setDropErr(nil)
	require.NoError(t, e.svc.Resume(ctx, perr))
	assert.True(t, perr.RolledBack())
	e.assertNothingLeft(t, "acme")
}

func TestProvision_CancelledMidway(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := newEnv(t)
	e.migrator.hook = cancel

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.ErrorIs(t, err, context.Canceled)

	var perr *provisioning.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provisioning.StepCreateOwner, perr.Step())
	assert.True(t, perr.RolledBack())
	e.assertNothingLeft(t, "acme")
}

func TestProvision_Validation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	req := validRequest("acme")
	req.Code = "Bad Code!"
	req.Owner.Email = "not-an-email"
	req.Owner.Password = "short"
	req.DB.Name = "Store-DB"
	start := time.Now()
	end := start.Add(-time.Hour)
	req.SubscriptionStart, req.SubscriptionEnd = &start, &end

	_, err := e.svc.Provision(context.Background(), req)
	require.ErrorIs(t, err, provisioning.ErrInvalidRequest)

	var verr provisioning.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("code"))
	assert.True(t, verr.Has("owner.email"))
	assert.True(t, verr.Has("owner.password"))
	assert.True(t, verr.Has("db.name"))
	assert.True(t, verr.Has("subscription_end"))
	assert.False(t, verr.Has("name"))

	assert.Zero(t, e.admin.creates)
}

func TestLifecycle_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	bound := pkgtenant.WithCode(ctx, "acme")

	res, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)

	byCode, err := e.registry.FindByCode(ctx, "acme")
	require.NoError(t, err)
	byID, err := e.registry.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, byCode.ID, byID.ID)

	rec, err := e.svc.Deactivate(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeactivated, rec.Status)
	assert.False(t, e.router.HasRoute("acme"))
	assert.ErrorIs(t, e.router.Ping(bound), dbrouter.ErrTenantInactive)

	_, err = e.svc.Deactivate(ctx, "acme")
	assert.ErrorIs(t, err, tenant.ErrInvalidTransition)

	rec, err = e.svc.Activate(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, rec.Active())
	assert.True(t, e.router.HasRoute("acme"))
	require.NoError(t, e.router.Ping(bound))

	require.NoError(t, e.svc.Delete(ctx, "acme"))
	e.assertNothingLeft(t, "acme")
	assert.ErrorIs(t, e.router.Ping(bound), dbrouter.ErrUnknownTenant)

	assert.ErrorIs(t, e.svc.Delete(ctx, "acme"), tenant.ErrTenantNotFound)
}

func TestDeactivate_DuringLazyLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	bound := pkgtenant.WithCode(ctx, "acme")

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)

	// a fresh process: the store is active but has no route yet
	require.NoError(t, e.router.RemoveRoute(ctx, "acme"))

	opening := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.opener.beforeOpen = func(pg.Coordinates) {
		once.Do(func() {
			close(opening)
			<-release
		})
	}

	pinged := make(chan error, 1)
	go func() { pinged <- e.router.Ping(bound) }()

	<-opening
	rec, err := e.svc.Deactivate(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeactivated, rec.Status)
	close(release)

	assert.ErrorIs(t, <-pinged, dbrouter.ErrTenantInactive)
	assert.False(t, e.router.HasRoute("acme"))
	assert.ErrorIs(t, e.router.Ping(bound), dbrouter.ErrTenantInactive)
}

// recordingEvictions collects announced codes.
type recordingEvictions struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (r *recordingEvictions) Publish(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return r.err
}

func (r *recordingEvictions) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

func (e *env) deps(routes provisioning.Routes) provisioning.Deps {
	return provisioning.Deps{
		Registry: e.registry,
		Admin:    e.admin,
		Routes:   routes,
		Opener:   e.opener,
		Migrator: e.migrator,
		Accounts: e.accounts,
	}
}

func TestRouteEvictions_Announced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	evictions := &recordingEvictions{}
	svc, err := provisioning.New(e.deps(e.router),
		provisioning.WithConfig(provisioning.Config{BcryptCost: bcrypt.MinCost}),
		provisioning.WithRouteEvictions(evictions),
	)
	require.NoError(t, err)

	_, err = svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
	_, err = svc.Provision(ctx, validRequest("globex"))
	require.NoError(t, err)
	assert.Empty(t, evictions.published())

	_, err = svc.Deactivate(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "globex"))
	assert.Equal(t, []string{"acme", "globex"}, evictions.published())

	t.Run("publish failure does not fail the workflow", func(t *testing.T) {
		evictions.mu.Lock()
		evictions.err = errors.New("redis down")
		evictions.mu.Unlock()

		_, err := svc.Activate(ctx, "acme")
		require.NoError(t, err)
		_, err = svc.Deactivate(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, e.router.HasRoute("acme"))
	})
}

func TestRouteEvictions_AcrossInstances(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	channel := redis.NewChannel(client, redis.Config{KeyPrefix: "test:"}, "route-evictions")

	e := newEnv(t)
	first, err := provisioning.New(e.deps(e.router),
		provisioning.WithConfig(provisioning.Config{BcryptCost: bcrypt.MinCost}),
		provisioning.WithRouteEvictions(channel),
	)
	require.NoError(t, err)

	otherRouter := dbrouter.New(
		dbrouter.WithLoader(tenant.NewRouteLoader(e.registry, e.opener)),
		dbrouter.WithDrainTimeout(100*time.Millisecond),
	)
	t.Cleanup(func() { _ = otherRouter.Close(context.Background()) })
	second, err := provisioning.New(e.deps(otherRouter))
	require.NoError(t, err)

	go func() { _ = channel.Listen(ctx, second.EvictRoute) }()
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel.Name()).Result()
		return err == nil && n[channel.Name()] == 1
	}, time.Second, 10*time.Millisecond)

	_, err = first.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
	require.NoError(t, otherRouter.Ping(pkgtenant.WithCode(ctx, "acme")))
	require.True(t, otherRouter.HasRoute("acme"))

	_, err = first.Deactivate(ctx, "acme")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !otherRouter.HasRoute("acme") }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, otherRouter.Ping(pkgtenant.WithCode(ctx, "acme")), dbrouter.ErrTenantInactive)

	t.Run("invalid codes are ignored", func(t *testing.T) {
		assert.NotPanics(t, func() { second.EvictRoute(ctx, "NOT A CODE") })
	})
}

func TestDelete_SameDatabaseNameOnAnotherHost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	first := validRequest("acme")
	second := validRequest("other")
	second.DB.Host = "db-b.internal"
	second.DB.Name = first.DB.Name

	_, err := e.svc.Provision(ctx, first)
	require.NoError(t, err)
	_, err = e.svc.Provision(ctx, second)
	require.NoError(t, err)
	assert.True(t, e.admin.existsOn("db-b.internal", "store_acme"))

	require.NoError(t, e.svc.Delete(ctx, "other"))
	assert.False(t, e.admin.existsOn("db-b.internal", "store_acme"))
	assert.True(t, e.admin.existsOn("db.internal", "store_acme"))
}

func TestDelete_PartialFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)

	errDrop := errors.New("permission denied")
	e.admin.setDropErr(errDrop)

	err = e.svc.Delete(ctx, "acme")
	require.ErrorIs(t, err, provisioning.ErrTeardownFailed)
	assert.ErrorIs(t, err, errDrop)

	var terr *provisioning.TeardownError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Failed(provisioning.TeardownDatabase))
	assert.False(t, terr.Failed(provisioning.TeardownRoute))
	assert.False(t, terr.RecordDeleted)

	assert.False(t, e.router.HasRoute("acme"))
	rec, err := e.registry.FindByCode(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeleted, rec.Status)

	// a deleted store is never routed, even lazily
	assert.ErrorIs(t, e.router.Ping(pkgtenant.WithCode(ctx, "acme")), dbrouter.ErrUnknownTenant)

	e.admin.setDropErr(nil)
	require.NoError(t, e.svc.Delete(ctx, "acme"))
	e.assertNothingLeft(t, "acme")
}

func TestDelete_Force(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
	e.admin.setDropErr(errors.New("host unreachable"))

	err = e.svc.Delete(ctx, "acme", provisioning.Force())
	var terr *provisioning.TeardownError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.RecordDeleted)

	_, err = e.registry.FindByCode(ctx, "acme")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	for _, code := range []string{"alpha", "bravo", "charlie"} {
		rec := &tenant.Record{
			Name:   code,
			Code:   code,
			Status: tenant.StatusActive,
		}
		rec.DB.Database = "store_" + code
		require.NoError(t, e.registry.Create(ctx, rec))
	}
	sleeping := &tenant.Record{Name: "delta", Code: "delta", Status: tenant.StatusDeactivated}
	require.NoError(t, e.registry.Create(ctx, sleeping))

	errRefused := errors.New("connection refused")
	e.opener.failOn["store_bravo"] = errRefused

	n, err := e.svc.Bootstrap(ctx)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, errRefused)

	var partial *fanout.PartialError[struct{}]
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, "bravo", partial.Failures[0].Code)

	assert.Equal(t, []string{"alpha", "charlie"}, e.router.Codes())

	delete(e.opener.failOn, "store_bravo")
	n, err = e.svc.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, e.router.Codes())
}

func TestMigrateAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	_, err := e.svc.Provision(ctx, validRequest("acme"))
	require.NoError(t, err)
	_, err = e.svc.Provision(ctx, validRequest("beta"))
	require.NoError(t, err)
	_, err = e.svc.Deactivate(ctx, "beta")
	require.NoError(t, err)
	e.migrator.calls = nil

	res, err := e.svc.MigrateAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "acme", res.Items[0].Code)
	assert.Equal(t, []string{"store_acme"}, e.migrator.calls)
}
