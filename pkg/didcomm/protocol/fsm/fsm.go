/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fsm is the transition engine shared by the protocol state machines. Every protocol declares
// its legal (state, event) pairs once in a Table; machines consult the table before building any
// outbound message, so an illegal input never changes a machine.
package fsm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedMessage is returned when an event is not legal in the current state.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrThreadMismatch is returned when a message belongs to another thread.
	ErrThreadMismatch = errors.New("thread mismatch")
	// ErrInvalidState is returned when a local action needs data the current state does not hold.
	ErrInvalidState = errors.New("invalid state")
)

// ProtocolError reports a rejected transition.
type ProtocolError struct {
	Protocol string
	State    string
	Kind     string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s in state %s: %v", e.Protocol, e.Kind, e.State, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Table is the transition table of one protocol role.
type Table[S, E comparable] struct {
	protocol string
	edges    map[S]map[E]S
}

// NewTable creates an empty table for protocol.
func NewTable[S, E comparable](protocol string) *Table[S, E] {
	return &Table[S, E]{protocol: protocol, edges: map[S]map[E]S{}}
}

// Add registers from --on--> to. Later registrations of the same pair win.
func (t *Table[S, E]) Add(from S, on E, to S) *Table[S, E] {
	if t.edges[from] == nil {
		t.edges[from] = map[E]S{}
	}

	t.edges[from][on] = to

	return t
}

// AddFrom registers on --> to for each of the given source states.
func (t *Table[S, E]) AddFrom(from []S, on E, to S) *Table[S, E] {
	for _, s := range from {
		t.Add(s, on, to)
	}

	return t
}

// Next returns the state reached from `from` on event `on`.
func (t *Table[S, E]) Next(from S, on E) (S, error) {
	to, ok := t.edges[from][on]
	if !ok {
		var zero S

		return zero, t.Errorf(from, on, ErrUnexpectedMessage)
	}

	return to, nil
}

// Can reports whether `on` is legal in `from`.
func (t *Table[S, E]) Can(from S, on E) bool {
	_, ok := t.edges[from][on]

	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (t *Table[S, E]) Terminal(s S) bool {
	return len(t.edges[s]) == 0
}

// Errorf wraps err in a ProtocolError for (state, event).
func (t *Table[S, E]) Errorf(state S, on E, err error) error {
	return &ProtocolError{
		Protocol: t.protocol,
		State:    fmt.Sprint(state),
		Kind:     fmt.Sprint(on),
		Err:      err,
	}
}

// CheckThread checks an inbound thread id against the one a machine holds. An empty expected id means
// the message establishes the thread.
func CheckThread(expected, got string) error {
	if expected == "" || expected == got {
		return nil
	}

	return fmt.Errorf("%w: expected %s, got %s", ErrThreadMismatch, expected, got)
}
