//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package reshare implements the migration of legacy Shamir shares
// into replicated shares. A client pulls an identity range from the
// server in sequenced batches and acknowledges each batch after
// storing it; the server converts the legacy records on the fly.
package reshare

import (
	"errors"
	"fmt"
)

// State defines the session states.
type State int

// Session states.
const (
	Connected State = iota
	Authenticated
	StreamingBatches
	Finalizing
	Closed
	Error
)

var states = map[State]string{
	Connected:        "connected",
	Authenticated:    "authenticated",
	StreamingBatches: "streaming",
	Finalizing:       "finalizing",
	Closed:           "closed",
	Error:            "error",
}

func (s State) String() string {
	name, ok := states[s]
	if ok {
		return name
	}
	return fmt.Sprintf("{State %d}", s)
}

// Terminal tests if the state is a terminal state.
func (s State) Terminal() bool {
	return s == Closed || s == Error
}

// Event defines session events.
type Event int

// Session events.
const (
	// EventAuthenticated is fired when the peer's identity has been
	// verified.
	EventAuthenticated Event = iota
	// EventStart is fired when the session range is accepted.
	EventStart
	// EventBatch is fired for each acknowledged batch.
	EventBatch
	// EventExhausted is fired when the range has been streamed.
	EventExhausted
	// EventVerified is fired when the record count is verified.
	EventVerified
	// EventFail is fired on any session error.
	EventFail
)

var events = map[Event]string{
	EventAuthenticated: "authenticated",
	EventStart:         "start",
	EventBatch:         "batch",
	EventExhausted:     "exhausted",
	EventVerified:      "verified",
	EventFail:          "fail",
}

func (e Event) String() string {
	name, ok := events[e]
	if ok {
		return name
	}
	return fmt.Sprintf("{Event %d}", e)
}

// ErrTransition is returned for events that are not valid in the
// current state.
var ErrTransition = errors.New("reshare: invalid state transition")

// Transition returns the state that follows the event in the state
// s. Invalid events move the session to Error.
func Transition(s State, e Event) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("%w: %s in terminal state %s", ErrTransition, e, s)
	}
	if e == EventFail {
		return Error, nil
	}
	switch {
	case s == Connected && e == EventAuthenticated:
		return Authenticated, nil
	case s == Authenticated && e == EventStart:
		return StreamingBatches, nil
	case s == StreamingBatches && e == EventBatch:
		return StreamingBatches, nil
	case s == StreamingBatches && e == EventExhausted:
		return Finalizing, nil
	case s == Finalizing && e == EventVerified:
		return Closed, nil
	}
	return Error, fmt.Errorf("%w: %s in state %s", ErrTransition, e, s)
}
