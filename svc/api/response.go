package api

import (
	"net/http"

	"github.com/dmitrymomot/storefleet/pkg/handler"
)

// failure defers err to the wrapped error handler, which classifies, logs
// and renders it.
type failure struct {
	err error
}

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

func errorResponse(err error) handler.Response {
	return failure{err: err}
}
