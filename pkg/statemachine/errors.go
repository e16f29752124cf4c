package statemachine

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be empty")

// ErrNoTransitionAvailable indicates no valid transition exists for the given state/event combination.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrAmbiguousTransition indicates one (state, event) pair was declared with two targets.
type ErrAmbiguousTransition struct {
	StateName string
	EventName string
}

func (e *ErrAmbiguousTransition) Error() string {
	return fmt.Sprintf("state '%s' already has a different target for event '%s'", e.StateName, e.EventName)
}

func NewErrAmbiguousTransition(stateName, eventName string) *ErrAmbiguousTransition {
	return &ErrAmbiguousTransition{
		StateName: stateName,
		EventName: eventName,
	}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}
