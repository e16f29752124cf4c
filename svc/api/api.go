package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/handler"
	"github.com/dmitrymomot/storefleet/pkg/httpserver"
	"github.com/dmitrymomot/storefleet/pkg/ratelimiter"
	"github.com/dmitrymomot/storefleet/pkg/requestid"
	pkgtenant "github.com/dmitrymomot/storefleet/pkg/tenant"
	"github.com/dmitrymomot/storefleet/svc/provisioning"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// Lifecycle is the provisioning surface used by the admin routes.
type Lifecycle interface {
	Provision(ctx context.Context, req provisioning.Request) (*provisioning.Result, error)
	Activate(ctx context.Context, code string) (*tenant.Record, error)
	Deactivate(ctx context.Context, code string) (*tenant.Record, error)
	Delete(ctx context.Context, code string, opts ...provisioning.DeleteOption) error
}

// Directory is the read side of the tenant registry.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Record, error)
	FindByCode(ctx context.Context, code string) (*tenant.Record, error)
	List(ctx context.Context) ([]*tenant.Record, error)
}

// Accounts queries the accounts of the store bound to ctx.
type Accounts interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]*tenant.Account, error)
	SearchAccounts(ctx context.Context, q string, limit int) ([]*tenant.Account, error)
	CountAccounts(ctx context.Context) (int, error)
}

// Deps are the collaborators of the API.
type Deps struct {
	Lifecycle Lifecycle
	Directory Directory
	Accounts  Accounts
	// Stores lists the codes a cross-store search visits.
	Stores fanout.Source
	// Checks run on /health/ready.
	Checks []func(context.Context) error
	// Limiter throttles store routes per store code. Nil disables throttling.
	Limiter *ratelimiter.Bucket
}

// Config tunes the API.
type Config struct {
	TenantHeader      string        `env:"API_TENANT_HEADER" envDefault:"X-Tenant-ID"`
	SearchConcurrency int           `env:"API_SEARCH_CONCURRENCY"`
	SearchTimeout     time.Duration `env:"API_SEARCH_TIMEOUT" envDefault:"10s"`
	DefaultLimit      int           `env:"API_DEFAULT_LIMIT" envDefault:"20"`
	MaxLimit          int           `env:"API_MAX_LIMIT" envDefault:"100"`
}

func defaultConfig() Config {
	return Config{
		TenantHeader:      "X-Tenant-ID",
		SearchConcurrency: 4,
		SearchTimeout:     10 * time.Second,
		DefaultLimit:      20,
		MaxLimit:          100,
	}
}

// Option configures the API.
type Option func(*API)

// WithConfig overrides the defaults. Zero fields keep their default.
func WithConfig(cfg Config) Option {
	return func(a *API) {
		if cfg.TenantHeader != "" {
			a.cfg.TenantHeader = cfg.TenantHeader
		}
		if cfg.SearchConcurrency > 0 {
			a.cfg.SearchConcurrency = cfg.SearchConcurrency
		}
		if cfg.SearchTimeout > 0 {
			a.cfg.SearchTimeout = cfg.SearchTimeout
		}
		if cfg.DefaultLimit > 0 {
			a.cfg.DefaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			a.cfg.MaxLimit = cfg.MaxLimit
		}
	}
}

// WithLogger sets the logger for failed requests.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// API serves the HTTP endpoints.
type API struct {
	deps   Deps
	cfg    Config
	log    *slog.Logger
	errors handler.ErrorHandler[handler.Context]
}

// New validates deps and builds the API.
func New(deps Deps, opts ...Option) (*API, error) {
	if deps.Lifecycle == nil || deps.Directory == nil || deps.Accounts == nil || deps.Stores == nil {
		return nil, ErrMissingDependency
	}

	a := &API{
		deps: deps,
		cfg:  defaultConfig(),
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.errors = handler.NewErrorHandler(a.log, classify)

	return a, nil
}

// Handler returns the routed handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.HealthCheckHandler(a.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, a.deps.Checks...))

	r.Route("/admin", func(r chi.Router) {
		r.Use(unbind)

		r.Post("/tenants", wrap(a, a.createTenant, jsonBody()))
		r.Get("/tenants", wrap(a, a.listTenants))
		r.Get("/tenants/id/{id}", wrap(a, a.showTenantByID, pathParams()))
		r.Get("/tenants/{code}", wrap(a, a.showTenant, pathParams()))
		r.Post("/tenants/{code}/activate", wrap(a, a.activateTenant, pathParams()))
		r.Post("/tenants/{code}/deactivate", wrap(a, a.deactivateTenant, pathParams()))
		r.Delete("/tenants/{code}", wrap(a, a.deleteTenant, pathParams(), queryParams()))

		r.Get("/accounts", wrap(a, a.searchAllAccounts, queryParams()))
	})

	r.Route("/store", func(r chi.Router) {
		r.Use(pkgtenant.Middleware(
			pkgtenant.NewHeaderResolver(a.cfg.TenantHeader),
			pkgtenant.WithRequired(true),
			pkgtenant.WithErrorHandler(a.httpError),
			pkgtenant.WithLogger(a.log),
		))
		if a.deps.Limiter != nil {
			r.Use(ratelimiter.Middleware(a.deps.Limiter, boundStore,
				ratelimiter.WithErrorHandler(a.httpError),
				ratelimiter.WithLogger(a.log),
			))
		}

		r.Get("/accounts", wrap(a, a.listStoreAccounts, queryParams()))
		r.Get("/accounts/search", wrap(a, a.searchStoreAccounts, queryParams()))
	})

	return r
}

// httpError adapts the API error handler to plain net/http middleware.
func (a *API) httpError(w http.ResponseWriter, r *http.Request, err error) {
	a.errors(handler.NewContext(w, r), err)
}

// unbind masks any store code on admin routes.
func unbind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(pkgtenant.Clear(r.Context())))
	})
}

// boundStore keys the rate limiter by the store bound to the request.
func boundStore(r *http.Request) string {
	code, _ := pkgtenant.CodeFromContext(r.Context())
	return code
}

func (a *API) limit(requested int) int {
	switch {
	case requested <= 0:
		return a.cfg.DefaultLimit
	case requested > a.cfg.MaxLimit:
		return a.cfg.MaxLimit
	}
	return requested
}
