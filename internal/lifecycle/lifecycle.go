// Package lifecycle is a table-driven state machine shared by every order
// family. A family declares its transition table once; the engine validates
// events against it and produces state-conflict errors that name the states
// an event is actually allowed from. The engine is pure: persistence and side
// effects stay with the caller, inside the caller's transaction.
package lifecycle

import (
	"fmt"
	"strings"

	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Event names a lifecycle command ("pay", "ship", "cancel", ...).
type Event string

// Rule is one edge bundle of the transition graph: the event may fire from
// any state in From and always lands on To.
type Rule[S ~string] struct {
	From []S
	To   S
}

// Table maps each event of one order family to its rule. Events absent from
// the table do not exist for that family. States that appear in no rule's
// From list are terminal.
type Table[S ~string] map[Event]Rule[S]

// Can reports whether event may fire from current.
func (t Table[S]) Can(current S, event Event) bool {
	rule, ok := t[event]
	if !ok {
		return false
	}
	for _, from := range rule.From {
		if from == current {
			return true
		}
	}
	return false
}

// Next validates event against current and returns the target state. A
// rejected transition leaves state untouched and reports the allowed source
// states so callers can surface an actionable message.
func (t Table[S]) Next(current S, event Event) (S, error) {
	rule, ok := t[event]
	if !ok {
		var zero S
		return zero, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("unknown event %q", string(event)))
	}
	for _, from := range rule.From {
		if from == current {
			return rule.To, nil
		}
	}
	var zero S
	return zero, pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("%s is only allowed from %s (current: %s)",
			string(event), joinStates(rule.From), string(current)))
}

// AllowedFrom returns the source states for an event, mainly for messages
// and tests.
func (t Table[S]) AllowedFrom(event Event) []S {
	rule, ok := t[event]
	if !ok {
		return nil
	}
	out := make([]S, len(rule.From))
	copy(out, rule.From)
	return out
}

// Events lists every event the table knows about.
func (t Table[S]) Events() []Event {
	events := make([]Event, 0, len(t))
	for event := range t {
		events = append(events, event)
	}
	return events
}

// IsTerminal reports whether no event can fire from the given state.
func (t Table[S]) IsTerminal(state S) bool {
	for _, rule := range t {
		for _, from := range rule.From {
			if from == state {
				return false
			}
		}
	}
	return true
}

func joinStates[S ~string](states []S) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}
