// Package handler adapts typed request handlers to net/http.
//
// A handler receives a Context and an already bound request value and returns
// a Response; Wrap turns it into an http.HandlerFunc:
//
//	type showRequest struct {
//		Code string `path:"code"`
//	}
//
//	func show(ctx handler.Context, req showRequest) handler.Response {
//		rec, err := registry.FindByCode(ctx, req.Code)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(rec)
//	}
//
//	r.Get("/tenants/{code}", handler.Wrap(show,
//		handler.WithBinders[handler.Context, showRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, showRequest](errorHandler),
//	))
//
// Binding and rendering failures go to the configured ErrorHandler. The
// default one writes a JSON error envelope using the status carried by an
// HTTPError, 422 for errors exposing FieldErrors, and 500 otherwise.
// NewErrorHandler builds a logging variant that also consults classifiers, so
// domain errors can be mapped to statuses in one place.
package handler
