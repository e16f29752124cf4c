package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/storefleet/pkg/dbrouter"
)

// RouteLoader opens routes for active stores on first use.
// It implements dbrouter.Loader.
type RouteLoader struct {
	registry Registry
	opener   dbrouter.PoolOpener
}

// NewRouteLoader returns a loader that looks codes up in registry and opens pools with opener.
func NewRouteLoader(registry Registry, opener dbrouter.PoolOpener) *RouteLoader {
	return &RouteLoader{registry: registry, opener: opener}
}

func (l *RouteLoader) LoadRoute(ctx context.Context, code string) (dbrouter.Pool, error) {
	r, err := l.registry.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, fmt.Errorf("%w: %s", dbrouter.ErrUnknownTenant, code)
		}
		return nil, err
	}

	switch r.Status {
	case StatusActive:
	case StatusDeactivated:
		return nil, fmt.Errorf("%w: %s", dbrouter.ErrTenantInactive, code)
	default:
		// provisioning and deleted stores are routed explicitly by their workflows
		return nil, fmt.Errorf("%w: %s is %s", dbrouter.ErrUnknownTenant, code, r.Status)
	}

	pool, err := l.opener.Open(ctx, r.DB)
	if err != nil {
		return nil, errors.Join(dbrouter.ErrConnectionFailed, err)
	}
	return pool, nil
}
