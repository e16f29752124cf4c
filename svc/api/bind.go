package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/storefleet/pkg/binder"
	"github.com/dmitrymomot/storefleet/pkg/handler"
)

type bindFunc = func(r *http.Request, v any) error

func jsonBody() bindFunc    { return binder.JSON() }
func pathParams() bindFunc  { return binder.Path(chi.URLParam) }
func queryParams() bindFunc { return binder.Query() }

func wrap[R any](a *API, h handler.HandlerFunc[handler.Context, R], binders ...bindFunc) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](a.errors),
	)
}
