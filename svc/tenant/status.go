package tenant

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/storefleet/pkg/statemachine"
)

// Status is the lifecycle state of a TenantRecord.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusDeactivated  Status = "deactivated"
	StatusDeleted      Status = "deleted"
)

// Event moves a record between statuses.
type Event string

const (
	EventActivate   Event = "activate"
	EventDeactivate Event = "deactivate"
	EventDelete     Event = "delete"
	EventRollback   Event = "rollback"
)

type transition = statemachine.Transition[Status, Event]

// lifecycle allows delete on an already deleted record so a teardown that
// failed half-way can be retried.
var lifecycle = statemachine.MustTable(
	transition{From: StatusProvisioning, Event: EventActivate, To: StatusActive},
	transition{From: StatusProvisioning, Event: EventRollback, To: StatusDeleted},
	transition{From: StatusActive, Event: EventDeactivate, To: StatusDeactivated},
	transition{From: StatusActive, Event: EventDelete, To: StatusDeleted},
	transition{From: StatusDeactivated, Event: EventActivate, To: StatusActive},
	transition{From: StatusDeactivated, Event: EventDelete, To: StatusDeleted},
	transition{From: StatusDeleted, Event: EventDelete, To: StatusDeleted},
)

// Next returns the status ev leads to from s, or ErrInvalidTransition.
func (s Status) Next(ev Event) (Status, error) {
	next, err := lifecycle.Next(s, ev)
	if err != nil {
		return "", errors.Join(ErrInvalidTransition, err)
	}
	return next, nil
}

// Can reports whether ev is allowed from s.
func (s Status) Can(ev Event) bool {
	return lifecycle.Can(s, ev)
}

// Events lists the events allowed from s.
func (s Status) Events() []Event {
	return lifecycle.Events(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProvisioning, StatusActive, StatusDeactivated, StatusDeleted:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// TeardownEvent returns the event that moves a record in status s to deleted.
func TeardownEvent(s Status) Event {
	if s == StatusProvisioning {
		return EventRollback
	}
	return EventDelete
}
