package handler

import (
	"errors"
	"net/http"
)

// ErrNilResponse is reported when a handler returns no Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError carries the status and machine-readable code of an error response.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// NewHTTPError creates an HTTPError. An empty message falls back to the status text.
func NewHTTPError(status int, code, message string) HTTPError {
	return HTTPError{Status: status, Code: code, Message: message}
}

var (
	ErrBadRequest         = HTTPError{Status: http.StatusBadRequest, Code: "bad_request"}
	ErrForbidden          = HTTPError{Status: http.StatusForbidden, Code: "forbidden"}
	ErrNotFound           = HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrConflict           = HTTPError{Status: http.StatusConflict, Code: "conflict"}
	ErrServiceUnavailable = HTTPError{Status: http.StatusServiceUnavailable, Code: "service_unavailable"}
	ErrInternal           = HTTPError{Status: http.StatusInternalServerError, Code: "internal_error"}
)

// FieldErrors is implemented by validation errors that report messages per field.
type FieldErrors interface {
	error
	FieldErrors() map[string][]string
}
