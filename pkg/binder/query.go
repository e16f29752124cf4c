package binder

import "net/http"

// Query returns a binder that fills fields tagged `query:"name"` from the URL query.
// Slice fields accept both repeated keys and comma-separated values.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindValues(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
