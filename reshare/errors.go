//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package reshare

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSequence is returned for out-of-order or duplicate batch
	// sequence numbers.
	ErrSequence = errors.New("reshare: invalid sequence number")

	// ErrCountMismatch is returned when the number of received
	// records does not match the announced totals.
	ErrCountMismatch = errors.New("reshare: record count mismatch")

	// ErrStalled is returned when the peer does not send the next
	// message within the session timeout.
	ErrStalled = errors.New("reshare: session stalled")

	// ErrAborted is returned when the peer aborts the session.
	ErrAborted = errors.New("reshare: session aborted by peer")

	// ErrProtocol is returned for malformed or unexpected messages.
	ErrProtocol = errors.New("reshare: protocol error")

	// ErrUnauthenticated is returned when the peer is not
	// authenticated with a certificate.
	ErrUnauthenticated = errors.New("reshare: peer not authenticated")
)

// SessionError is a session failure.
type SessionError struct {
	Session uuid.UUID
	State   State
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Session, e.State, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
