// Package binder decodes HTTP request input into typed request structs.
//
// Each binder is a func(*http.Request, any) error that fills the fields it
// owns and leaves the rest untouched, so several binders can be applied to the
// same value in sequence:
//
//	type ShowTenantRequest struct {
//		Code   string `path:"code"`
//		Expand bool   `query:"expand"`
//	}
//
//	h := handler.Wrap(show, handler.WithBinders[handler.Context, ShowTenantRequest](
//		binder.Path(chi.URLParam),
//		binder.Query(),
//	))
//
// JSON decodes the request body strictly: unknown fields, trailing data and
// bodies above MaxJSONSize are rejected. Query and Path use struct tags of the
// same name; a "-" tag skips the field and an untagged field binds to its
// lowercased name. Supported field kinds are strings, integers, floats, bools,
// time.Time (RFC 3339), slices of those, and pointers for optional values.
//
// Every failure wraps one of the package sentinels, and IsBindingError lets
// callers map all of them to a single client error status.
package binder
