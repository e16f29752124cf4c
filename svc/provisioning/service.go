package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

// DatabaseAdmin creates and drops physical databases on the server the
// coordinates point at. *pg.Admin implements it.
type DatabaseAdmin interface {
	CreateDatabase(ctx context.Context, c pg.Coordinates) error
	DropDatabase(ctx context.Context, c pg.Coordinates) error
}

// Routes is the part of *dbrouter.Router the workflow drives.
type Routes interface {
	AddRoute(code string, pool dbrouter.Pool) error
	RemoveRoute(ctx context.Context, code string) error
	HasRoute(code string) bool
}

// Migrator applies the store schema to one database.
type Migrator interface {
	Migrate(ctx context.Context, c pg.Coordinates) ([]int64, error)
}

// OwnerAccounts writes owner accounts into the store bound to ctx. *tenant.AccountStore implements it.
type OwnerAccounts interface {
	CreateOwnerAccount(ctx context.Context, o *tenant.Owner) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// RouteEvictions tells other instances to drop a store's route. *redis.Channel implements it.
type RouteEvictions interface {
	Publish(ctx context.Context, code string) error
}

// Deps are the collaborators of a Service. All are required.
type Deps struct {
	Registry tenant.Registry
	Admin    DatabaseAdmin
	Routes   Routes
	Opener   dbrouter.PoolOpener
	Migrator Migrator
	Accounts OwnerAccounts
}

func (d Deps) validate() error {
	var missing []error
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, fmt.Errorf("%w: %s", ErrMissingDependency, name))
		}
	}
	check("registry", d.Registry != nil)
	check("admin", d.Admin != nil)
	check("routes", d.Routes != nil)
	check("opener", d.Opener != nil)
	check("migrator", d.Migrator != nil)
	check("accounts", d.Accounts != nil)
	return errors.Join(missing...)
}

// Config holds provisioning settings.
type Config struct {
	BcryptCost        int `env:"PROVISIONING_BCRYPT_COST" envDefault:"10"`
	BootstrapParallel int `env:"PROVISIONING_BOOTSTRAP_PARALLEL" envDefault:"4"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.BcryptCost > 0 {
			s.bcryptCost = cfg.BcryptCost
		}
		if cfg.BootstrapParallel > 0 {
			s.parallel = cfg.BootstrapParallel
		}
	}
}

// WithRouteEvictions announces every Deactivate and Delete on p, so other
// instances drop their routes without waiting for the maintenance sweep.
func WithRouteEvictions(p RouteEvictions) Option {
	return func(s *Service) {
		s.evictions = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service runs the store lifecycle workflows.
type Service struct {
	Deps

	validate   *validator.Validate
	evictions  RouteEvictions
	log        *slog.Logger
	bcryptCost int
	parallel   int
	now        func() time.Time
}

// New returns a Service. It fails if a dependency is missing.
func New(deps Deps, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		Deps:       deps,
		validate:   newValidator(),
		log:        slog.New(slog.DiscardHandler),
		bcryptCost: bcrypt.DefaultCost,
		parallel:   4,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
