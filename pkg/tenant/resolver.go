package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultHeader is the header carrying the tenant code on tenant-scoped requests.
const DefaultHeader = "X-Tenant-ID"

const (
	MinCodeLength = 3
	MaxCodeLength = 50
)

// codePattern: lowercase alphanumerics plus '-' and '_'.
var codePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// IsValidCode reports whether code is a well-formed routing key.
func IsValidCode(code string) bool {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return false
	}
	return codePattern.MatchString(code)
}

// Resolver extracts the tenant code from an HTTP request.
// Returns empty string if no code is present, error if the value is malformed.
type Resolver func(r *http.Request) (string, error)

// NewHeaderResolver reads the tenant code from the given header.
// Defaults to DefaultHeader if headerName is empty.
func NewHeaderResolver(headerName string) Resolver {
	if headerName == "" {
		headerName = DefaultHeader
	}

	return func(req *http.Request) (string, error) {
		value := strings.TrimSpace(req.Header.Get(headerName))
		if value == "" {
			return "", nil
		}
		if !IsValidCode(value) {
			return "", fmt.Errorf("%w: header value '%s'", ErrInvalidIdentifier, value)
		}
		return value, nil
	}
}

// NewPathResolver extracts the tenant code from the URL path segment at 1-based position.
// Position 2 extracts from /stores/{code}/orders.
func NewPathResolver(position int) Resolver {
	return func(req *http.Request) (string, error) {
		if position < 1 {
			return "", fmt.Errorf("invalid path position: %d", position)
		}

		path := strings.Trim(req.URL.Path, "/")
		if path == "" {
			return "", nil
		}

		parts := strings.Split(path, "/")
		if position > len(parts) || parts[position-1] == "" {
			return "", nil
		}

		value := strings.TrimSpace(parts[position-1])
		if !IsValidCode(value) {
			return "", fmt.Errorf("%w: path segment '%s'", ErrInvalidIdentifier, value)
		}
		return value, nil
	}
}

// NewCompositeResolver tries multiple resolvers in order, returning the first non-empty result.
func NewCompositeResolver(resolvers ...Resolver) Resolver {
	return func(r *http.Request) (string, error) {
		var errs []error

		for _, resolver := range resolvers {
			code, err := resolver(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if code != "" {
				return code, nil
			}
		}

		if len(errs) > 0 {
			return "", fmt.Errorf("composite resolver errors: %w", errors.Join(errs...))
		}
		return "", nil
	}
}
