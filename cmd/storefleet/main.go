package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/storefleet/db"
	"github.com/dmitrymomot/storefleet/pkg/config"
	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/httpserver"
	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/ratelimiter"
	"github.com/dmitrymomot/storefleet/pkg/redis"
	"github.com/dmitrymomot/storefleet/pkg/requestid"
	"github.com/dmitrymomot/storefleet/pkg/secrets"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/api"
	"github.com/dmitrymomot/storefleet/svc/maintenance"
	"github.com/dmitrymomot/storefleet/svc/provisioning"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

type appConfig struct {
	Env            string        `env:"APP_ENV" envDefault:"development"`
	ServiceName    string        `env:"APP_NAME" envDefault:"storefleet"`
	LogLevel       string        `env:"LOG_LEVEL"`
	TenantCache    string        `env:"TENANT_CACHE" envDefault:"redis"` // redis, memory or none
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	TenantCacheMax int           `env:"TENANT_CACHE_SIZE" envDefault:"1024"`
	SecretsKey     string        `env:"SECRETS_KEY"` // base64, 32 bytes; empty stores database passwords in plaintext
	MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, appCfg.ServiceName),
		logger.WithLevelName(appCfg.LogLevel),
		logger.WithContextExtractors(pkgtenant.LoggerExtractor(), requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, appCfg, log); err != nil {
		log.Error("storefleet stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("storefleet stopped")
}

func run(ctx context.Context, appCfg appConfig, log *slog.Logger) error {
	var (
		pgCfg       pg.Config
		adminCfg    pg.AdminConfig
		redisCfg    redis.Config
		routerCfg   dbrouter.Config
		provCfg     provisioning.Config
		sweepCfg    maintenance.Config
		apiCfg      api.Config
		httpCfg     httpserver.Config
		fanoutCfg   fanout.Config
		limitCfg    ratelimiter.Config
		loadConfigs = []error{
			config.Load(&pgCfg),
			config.Load(&adminCfg),
			config.Load(&redisCfg),
			config.Load(&routerCfg),
			config.Load(&provCfg),
			config.Load(&sweepCfg),
			config.Load(&apiCfg),
			config.Load(&httpCfg),
			config.Load(&fanoutCfg),
			config.Load(&limitCfg),
		}
	)
	if err := errors.Join(loadConfigs...); err != nil {
		return err
	}

	master, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer master.Close()

	if _, err := pg.Migrate(ctx, master, db.Master(), pgCfg, log.With(logger.Component("master-migrations"))); err != nil {
		return err
	}

	admin, err := pg.NewAdmin(adminCfg)
	if err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	var (
		pgOpts    []tenant.PgOption
		cacheOpts []tenant.RedisCacheOption
	)
	if appCfg.SecretsKey != "" {
		key, err := secrets.ParseKey(appCfg.SecretsKey)
		if err != nil {
			return err
		}
		sealer, err := secrets.NewSealer(key)
		if err != nil {
			return err
		}
		pgOpts = append(pgOpts, tenant.WithSealer(sealer))
		cacheOpts = append(cacheOpts, tenant.WithCacheSealer(sealer))
	} else {
		log.WarnContext(ctx, "SECRETS_KEY is not set, store database passwords are kept in plaintext")
	}

	var recordCache tenant.Cache
	switch appCfg.TenantCache {
	case "memory":
		recordCache = tenant.NewMemoryCache(appCfg.TenantCacheMax, appCfg.TenantCacheTTL)
	case "none":
		recordCache = tenant.NoOpCache{}
	default:
		recordCache = tenant.NewRedisCache(redis.NewStorage(rdb, redisCfg), appCfg.TenantCacheTTL, cacheOpts...)
	}

	registry := tenant.NewCachedRegistry(
		tenant.NewPgRegistry(master, pgOpts...),
		recordCache,
		log.With(logger.Component("registry")),
	)

	opener := dbrouter.NewOpener(pgCfg)
	router := dbrouter.New(
		dbrouter.WithConfig(routerCfg),
		dbrouter.WithLoader(tenant.NewRouteLoader(registry, opener)),
		dbrouter.WithLogger(log.With(logger.Component("router"))),
	)
	accounts := tenant.NewAccountStore(router)
	evictions := redis.NewChannel(rdb, redisCfg, "route-evictions")

	svc, err := provisioning.New(provisioning.Deps{
		Registry: registry,
		Admin:    admin,
		Routes:   router,
		Opener:   opener,
		Migrator: provisioning.NewPgMigrator(pgCfg, db.Tenant(), log.With(logger.Component("store-migrations"))),
		Accounts: accounts,
	},
		provisioning.WithConfig(provCfg),
		provisioning.WithRouteEvictions(evictions),
		provisioning.WithLogger(log.With(logger.Component("provisioning"))),
	)
	if err != nil {
		return err
	}

	if appCfg.MigrateOnStart {
		if _, err := svc.MigrateAll(ctx); err != nil {
			// stores that failed stay on their old schema and are reported per store
			log.WarnContext(ctx, "store migrations incomplete", logger.Error(err))
		}
	}
	if _, err := svc.Bootstrap(ctx); err != nil {
		log.WarnContext(ctx, "some store routes failed to open", logger.Error(err))
	}

	sweeper := maintenance.NewSweeper(registry, router, svc,
		maintenance.WithConfig(sweepCfg),
		maintenance.WithRoutes(router),
		maintenance.WithLogger(log.With(logger.Component("maintenance"))),
	)

	var limiter *ratelimiter.Bucket
	if limitCfg.Enabled {
		limiter, err = ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, redisCfg.KeyPrefix+"ratelimit:"), limitCfg)
		if err != nil {
			return err
		}
	}

	if apiCfg.SearchConcurrency == 0 {
		apiCfg.SearchConcurrency = fanoutCfg.Concurrency
	}
	handlers, err := api.New(api.Deps{
		Lifecycle: svc,
		Directory: registry,
		Accounts:  accounts,
		Stores:    tenant.ActiveCodes(registry),
		Checks: []func(context.Context) error{
			pg.Healthcheck(master),
			redis.Healthcheck(rdb),
		},
		Limiter: limiter,
	},
		api.WithConfig(apiCfg),
		api.WithLogger(log.With(logger.Component("api"))),
	)
	if err != nil {
		return err
	}

	server := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log.With(logger.Component("http"))),
		httpserver.WithStopHook(func(ctx context.Context, log *slog.Logger) error {
			log.InfoContext(ctx, "draining store routes", slog.Int("routes", len(router.Codes())))
			return router.Close(ctx)
		}),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(sweeper.Run(ctx))
	g.Go(func() error {
		return evictions.Listen(ctx, svc.EvictRoute)
	})
	g.Go(func() error {
		return server.Run(ctx, handlers.Handler())
	})

	return g.Wait()
}
