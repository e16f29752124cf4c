package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/svc/tenant"
)

var (
	ErrAlreadyStarted = errors.New("sweeper already started")
	ErrNotStarted     = errors.New("sweeper not started")
)

// Config holds sweep settings.
type Config struct {
	Interval    time.Duration `env:"MAINTENANCE_INTERVAL" envDefault:"1h"`
	Concurrency int           `env:"MAINTENANCE_CONCURRENCY" envDefault:"1"`
	RunOnStart  bool          `env:"MAINTENANCE_RUN_ON_START" envDefault:"true"`

	// RouteCheckInterval is how often open routes are checked against the registry.
	RouteCheckInterval time.Duration `env:"MAINTENANCE_ROUTE_CHECK_INTERVAL" envDefault:"1m"`
}

// Deactivator stops routing to a store. *provisioning.Service implements it.
type Deactivator interface {
	Deactivate(ctx context.Context, code string) (*tenant.Record, error)
}

// RouteTable is the part of *dbrouter.Router that route reconciliation needs.
type RouteTable interface {
	Codes() []string
	RemoveRoute(ctx context.Context, code string) error
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(s *Sweeper) {
		if cfg.Interval > 0 {
			s.interval = cfg.Interval
		}
		if cfg.Concurrency > 0 {
			s.concurrency = cfg.Concurrency
		}
		if cfg.RouteCheckInterval > 0 {
			s.routeInterval = cfg.RouteCheckInterval
		}
		s.runOnStart = cfg.RunOnStart
	}
}

// WithRoutes enables ReconcileRoutes, both as part of Sweep and on its own
// RouteCheckInterval ticker.
func WithRoutes(rt RouteTable) Option {
	return func(s *Sweeper) {
		s.routes = rt
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper runs maintenance sweeps on a ticker.
type Sweeper struct {
	registry    tenant.Registry
	db          dbrouter.Querier
	deactivator Deactivator
	routes      RouteTable

	interval      time.Duration
	routeInterval time.Duration
	concurrency   int
	runOnStart    bool
	log           *slog.Logger
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper returns a Sweeper. db must route by the tenant bound to the context.
func NewSweeper(registry tenant.Registry, db dbrouter.Querier, deactivator Deactivator, opts ...Option) *Sweeper {
	s := &Sweeper{
		registry:      registry,
		db:            db,
		deactivator:   deactivator,
		interval:      time.Hour,
		routeInterval: time.Minute,
		concurrency:   1,
		runOnStart:    true,
		log:           slog.New(slog.DiscardHandler),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeactivateExpiredPromotions turns off promotions that ended, in every active store.
// The result maps each store to the number of promotions changed.
func (s *Sweeper) DeactivateExpiredPromotions(ctx context.Context) (*fanout.Result[int64], error) {
	now := s.now().UTC()
	fn := func(ctx context.Context, code string) (int64, error) {
		tag, err := s.db.Exec(ctx,
			`UPDATE promotions SET active = false, updated_at = $1 WHERE active AND ends_at < $1`,
			now,
		)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	source := tenant.ActiveCodes(s.registry)
	if s.concurrency > 1 {
		return fanout.ForEachConcurrent(ctx, source, s.concurrency, fn, fanout.WithLogger(s.log))
	}
	return fanout.ForEach(ctx, source, fn, fanout.WithLogger(s.log))
}

// DeactivateExpiredSubscriptions deactivates active stores whose subscription ended
// and returns their codes. Every store is attempted; failures are joined.
func (s *Sweeper) DeactivateExpiredSubscriptions(ctx context.Context) ([]string, error) {
	expired, err := s.registry.ExpiredSubscriptions(ctx, s.now())
	if err != nil {
		return nil, err
	}

	var (
		codes []string
		errs  []error
	)
	for _, r := range expired {
		if _, err := s.deactivator.Deactivate(ctx, r.Code); err != nil {
			errs = append(errs, err)
			continue
		}
		codes = append(codes, r.Code)
		s.log.InfoContext(ctx, "store subscription expired, deactivated",
			logger.Tenant(r.Code),
			slog.Time("subscription_end", *r.SubscriptionEnd),
		)
	}
	return codes, errors.Join(errs...)
}

// ReconcileRoutes removes the routes of stores that are no longer active in
// the registry and returns their codes. It catches deactivations made on other
// instances whose eviction message was lost. Without WithRoutes it does nothing.
func (s *Sweeper) ReconcileRoutes(ctx context.Context) ([]string, error) {
	if s.routes == nil {
		return nil, nil
	}

	var (
		removed []string
		errs    []error
	)
	for _, code := range s.routes.Codes() {
		rec, err := s.registry.FindByCode(ctx, code)
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
		case err != nil:
			errs = append(errs, fmt.Errorf("check route %s: %w", code, err))
			continue
		case rec.Active():
			continue
		}

		err = s.routes.RemoveRoute(ctx, code)
		switch {
		case err == nil, errors.Is(err, dbrouter.ErrDrainTimeout):
			removed = append(removed, code)
			s.log.InfoContext(ctx, "removed route of inactive store", logger.Tenant(code))
		case errors.Is(err, dbrouter.ErrUnknownTenant):
		default:
			errs = append(errs, fmt.Errorf("remove route %s: %w", code, err))
		}
	}
	return removed, errors.Join(errs...)
}

// Sweep runs every maintenance task once.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := s.now()

	removed, routeErr := s.ReconcileRoutes(ctx)
	deactivated, subErr := s.DeactivateExpiredSubscriptions(ctx)

	res, promoErr := s.DeactivateExpiredPromotions(ctx)
	var promotions int64
	for _, v := range res.Values() {
		promotions += v
	}

	err := errors.Join(routeErr, subErr, promoErr)
	attrs := []any{
		slog.Int("routes_removed", len(removed)),
		slog.Int("stores_deactivated", len(deactivated)),
		slog.Int64("promotions_deactivated", promotions),
		logger.Duration(s.now().Sub(start)),
	}
	if err != nil {
		s.log.WarnContext(ctx, "maintenance sweep finished with errors", append(attrs, logger.Error(err))...)
	} else {
		s.log.InfoContext(ctx, "maintenance sweep finished", attrs...)
	}
	return err
}

// Start launches the ticker loop in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.log.InfoContext(ctx, "maintenance sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for a running sweep to return.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	s.wg.Wait()

	s.log.Info("maintenance sweeper stopped")
	return nil
}

// Run starts the sweeper and returns a function suitable for errgroup.
func (s *Sweeper) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	if s.runOnStart {
		_ = s.Sweep(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var routeTick <-chan time.Time
	if s.routes != nil {
		rt := time.NewTicker(s.routeInterval)
		defer rt.Stop()
		routeTick = rt.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Sweep(ctx)
		case <-routeTick:
			if _, err := s.ReconcileRoutes(ctx); err != nil {
				s.log.WarnContext(ctx, "route reconciliation finished with errors", logger.Error(err))
			}
		}
	}
}
