package statemachine

import (
	"slices"
)

// Transition defines a state change triggered by an event.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Table is an immutable transition table. It holds no current state: callers
// keep state in their own records (usually a database row) and ask the table
// what an event leads to, so one Table serves any number of concurrent records.
type Table[S ~string, E ~string] struct {
	transitions map[S]map[E]S
}

// NewTable builds a table from transitions. Declaring the same (from, event)
// pair twice with different targets is rejected.
func NewTable[S ~string, E ~string](transitions ...Transition[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{transitions: make(map[S]map[E]S)}
	for _, tr := range transitions {
		if tr.From == "" || tr.To == "" || tr.Event == "" {
			return nil, ErrInvalidTransition
		}
		if _, ok := t.transitions[tr.From]; !ok {
			t.transitions[tr.From] = make(map[E]S)
		}
		if existing, ok := t.transitions[tr.From][tr.Event]; ok && existing != tr.To {
			return nil, NewErrAmbiguousTransition(string(tr.From), string(tr.Event))
		}
		t.transitions[tr.From][tr.Event] = tr.To
	}
	return t, nil
}

// MustTable is NewTable that panics on an invalid declaration.
// Intended for package-level tables.
func MustTable[S ~string, E ~string](transitions ...Transition[S, E]) *Table[S, E] {
	t, err := NewTable(transitions...)
	if err != nil {
		panic(err)
	}
	return t
}

// Next returns the state event leads to from the given state.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	if to, ok := t.transitions[from][event]; ok {
		return to, nil
	}
	var zero S
	return zero, NewErrNoTransitionAvailable(string(from), string(event))
}

// Can reports whether event is allowed from the given state.
func (t *Table[S, E]) Can(from S, event E) bool {
	_, ok := t.transitions[from][event]
	return ok
}

// Events lists the events allowed from the given state, sorted.
func (t *Table[S, E]) Events(from S) []E {
	events := make([]E, 0, len(t.transitions[from]))
	for e := range t.transitions[from] {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}
