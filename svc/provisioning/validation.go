package provisioning

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/storefleet/pkg/pg"
	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

// ValidationError maps request fields (JSON names, dotted for nested fields) to messages.
type ValidationError url.Values

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field][0]))
	}
	return fmt.Sprintf("validation error: %s", strings.Join(parts, ", "))
}

func (e ValidationError) Unwrap() error { return ErrInvalidRequest }

// Add adds a message for field.
func (e ValidationError) Add(field, message string) {
	url.Values(e).Add(field, message)
}

// Get returns the first message for field.
func (e ValidationError) Get(field string) string {
	return url.Values(e).Get(field)
}

// Has reports whether field has messages.
func (e ValidationError) Has(field string) bool {
	return len(e[field]) > 0
}

// FieldErrors exposes the messages keyed by field for response rendering.
func (e ValidationError) FieldErrors() map[string][]string {
	return e
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("tenantcode", func(fl validator.FieldLevel) bool {
		return tenant.IsValidCode(fl.Field().String())
	})
	_ = v.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		return pg.ValidateDatabaseName(fl.Field().String()) == nil
	})
	return v
}

func (s *Service) validateRequest(req *Request) error {
	req.normalize()

	out := make(ValidationError)
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Join(ErrInvalidRequest, err)
		}
		for _, fe := range verrs {
			out.Add(fieldPath(fe.Namespace()), message(fe))
		}
	}

	if req.SubscriptionStart != nil && req.SubscriptionEnd != nil && !req.SubscriptionEnd.After(*req.SubscriptionStart) {
		out.Add("subscription_end", "must be after subscription_start")
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in E.164 format"
	case "tenantcode":
		return fmt.Sprintf("must be %d-%d lowercase letters, digits, '-' or '_'", tenant.MinCodeLength, tenant.MaxCodeLength)
	case "dbname":
		return "must be a lowercase identifier of at most 63 characters"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
