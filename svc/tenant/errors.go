package tenant

import (
	"errors"
	"fmt"
)

var (
	ErrTenantNotFound           = errors.New("tenant not found")
	ErrOwnerNotFound            = errors.New("tenant owner not found")
	ErrDuplicateTenantCode      = errors.New("tenant code already exists")
	ErrDuplicateOwnerCredential = errors.New("owner credential already in use")
	ErrInvalidTransition        = errors.New("invalid tenant status transition")
	ErrInvalidStatus            = errors.New("invalid tenant status")
	ErrInvalidRecord            = errors.New("invalid tenant record")
)

// Conflict fields reported by ConflictError.
const (
	FieldCode     = "code"
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPhone    = "phone"
)

// ConflictError names the field whose value is already taken.
// It matches ErrDuplicateTenantCode for the code field and
// ErrDuplicateOwnerCredential for every owner field.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Field == FieldCode {
		return fmt.Sprintf("tenant code %q already exists", e.Value)
	}
	return fmt.Sprintf("owner %s %q already in use", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error {
	if e.Field == FieldCode {
		return ErrDuplicateTenantCode
	}
	return ErrDuplicateOwnerCredential
}

// IsConflict reports whether err is a user-correctable uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateTenantCode) || errors.Is(err, ErrDuplicateOwnerCredential)
}
