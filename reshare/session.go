//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package reshare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/shares"
)

const (
	// DefaultTimeout is the default stall timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultBatchSize is the default batch size.
	DefaultBatchSize = 64

	abortTimeout = time.Second
)

// Summary describes a finished session.
type Summary struct {
	Session uuid.UUID
	Role    shares.Role
	State   State
	Batches uint64
	Records uint64
}

type session struct {
	id      uuid.UUID
	conn    *p2p.Conn
	state   State
	timeout time.Duration
	log     *logging.Logger
	stop    func() bool
	aborted bool
}

func newSession(ctx context.Context, conn *p2p.Conn, timeout time.Duration,
	log *logging.Logger) *session {

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &session{
		conn:    conn,
		state:   Connected,
		timeout: timeout,
		log:     logging.OrDiscard(log),
	}
	// Cancellation unblocks pending reads and writes.
	s.stop = context.AfterFunc(ctx, func() {
		past := time.Unix(1, 0)
		conn.SetReadDeadline(past)
		conn.SetWriteDeadline(past)
	})
	return s
}

func (s *session) fire(e Event) error {
	next, err := Transition(s.state, e)
	s.log.Debug("transition", "from", s.state, "event", e, "to", next)
	s.state = next
	return err
}

func (s *session) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: no message in %v", ErrStalled, s.timeout)
	}
	return err
}

func (s *session) send(ctx context.Context, msg Message) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := SendMessage(s.conn, msg); err != nil {
		return s.ioError(ctx, err)
	}
	return nil
}

func (s *session) receive(ctx context.Context) (Message, error) {
	s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := ReceiveMessage(s.conn)
	if err != nil {
		return nil, s.ioError(ctx, err)
	}
	if abort, ok := msg.(*Abort); ok {
		s.aborted = true
		return nil, fmt.Errorf("%w: %s", ErrAborted, abort.Reason)
	}
	return msg, nil
}

// fail moves the session to Error and notifies the peer unless the
// peer aborted the session.
func (s *session) fail(err error) error {
	prev := s.state
	if !s.state.Terminal() {
		s.fire(EventFail)
	}
	if !s.aborted {
		s.conn.SetWriteDeadline(time.Now().Add(abortTimeout))
		SendMessage(s.conn, &Abort{
			Reason: err.Error(),
		})
	}
	s.log.Error(err, "state", prev)
	return &SessionError{
		Session: s.id,
		State:   prev,
		Err:     err,
	}
}

func (s *session) close() {
	s.stop()
	if err := s.conn.Close(); err != nil && s.state == Closed {
		s.log.Warn("close failed", "err", err)
	}
}

func unexpected(msg Message, expected MsgType) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrProtocol, expected,
		msg.Type())
}

// authenticate completes the TLS handshake within the stall timeout
// and verifies that the peer presented a certificate. The TLS stack
// has already verified the certificate chain. Plaintext connections
// are accepted only if insecure is set.
func (s *session) authenticate(ctx context.Context, insecure bool) error {
	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.conn.Handshake(hctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if hctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: TLS handshake not complete in %v",
				ErrStalled, s.timeout)
		}
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	state, ok := s.conn.TLS()
	if !ok {
		if insecure {
			return nil
		}
		return fmt.Errorf("%w: plaintext connection", ErrUnauthenticated)
	}
	if !state.HandshakeComplete || len(state.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no peer certificate", ErrUnauthenticated)
	}
	return nil
}
