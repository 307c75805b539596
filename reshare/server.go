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
	"net"
	"sync"
	"time"

	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/metrics"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/rng"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

// Server streams converted legacy records to clients.
type Server struct {
	Legacy store.LegacyStore

	// Eye is the eye of the legacy database. Sessions requesting
	// another eye are rejected.
	Eye iris.Eye

	// Seed keys the conversion randomness. The shares of an identity
	// are a deterministic function of the seed and the identity so
	// the sessions of the three roles receive pairs of the same
	// replicated sharing, and repeated migrations produce identical
	// records.
	Seed rng.Seed

	// Timeout is the stall timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// Insecure allows plaintext connections.
	Insecure bool

	Log *logging.Logger
}

// Serve accepts connections from the listener and handles each in its
// own goroutine. It returns when the context is done and all sessions
// have finished.
func (srv *Server) Serve(ctx context.Context, l *p2p.Listener) error {
	log := logging.OrDiscard(srv.Log)
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Info("listening", "addr", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := srv.Handle(ctx, conn)
			if err == nil {
				log.Info("session closed", "session", sum.Session,
					"role", sum.Role, "records", sum.Records)
			}
		}()
	}
}

// Handle runs a server session over the connection. The session
// closes the connection.
func (srv *Server) Handle(ctx context.Context, conn *p2p.Conn) (
	*Summary, error) {

	s := newSession(ctx, conn, srv.Timeout, srv.Log)
	defer s.close()

	sum := new(Summary)
	err := srv.run(ctx, s, sum)
	if err != nil {
		err = s.fail(err)
	}
	sum.Session = s.id
	sum.State = s.state

	metrics.RecordSession(metrics.SideServer, err)
	return sum, err
}

func (srv *Server) run(ctx context.Context, s *session, sum *Summary) error {
	if err := s.authenticate(ctx, srv.Insecure); err != nil {
		return err
	}
	if err := s.fire(EventAuthenticated); err != nil {
		return err
	}
	msg, err := s.receive(ctx)
	if err != nil {
		return err
	}
	hello, ok := msg.(*Hello)
	if !ok {
		return unexpected(msg, MsgHello)
	}
	s.id = hello.Session
	s.log = s.log.With("session", hello.Session, "role", hello.Role)
	sum.Role = hello.Role

	if !hello.Role.Valid() {
		return fmt.Errorf("%w: %v", shares.ErrRole, hello.Role)
	}
	if hello.Eye != srv.Eye {
		return fmt.Errorf("%w: requested %v eye, serving %v", ErrProtocol,
			hello.Eye, srv.Eye)
	}
	if hello.BatchSize <= 0 || hello.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: invalid batch size %d", ErrProtocol,
			hello.BatchSize)
	}
	if hello.End < hello.Start {
		return fmt.Errorf("%w: invalid range [%d, %d)", ErrProtocol,
			hello.Start, hello.End)
	}

	ids, err := srv.Legacy.IDs(ctx, hello.Start, hello.End)
	if err != nil {
		return err
	}
	total := uint64(len(ids))
	s.log.Info("session started", "peer", s.conn.PeerName(),
		"start", hello.Start, "end", hello.End, "total", total)

	if err := s.send(ctx, &Accept{Total: total}); err != nil {
		return err
	}
	if err := s.fire(EventStart); err != nil {
		return err
	}

	var seq uint64
	for len(ids) > 0 {
		n := min(len(ids), hello.BatchSize)
		chunk := ids[:n]
		ids = ids[n:]

		legacy, err := srv.Legacy.ReadRange(ctx, chunk[0], chunk[n-1]+1)
		if err != nil {
			return err
		}
		if len(legacy) != n {
			return fmt.Errorf("legacy store changed: read %d of %d records",
				len(legacy), n)
		}
		seq++
		batch := &Batch{
			Seq:     seq,
			Records: make([]Record, 0, len(legacy)),
		}
		for _, r := range legacy {
			rec, err := srv.Convert(r, hello.Role)
			if err != nil {
				return fmt.Errorf("identity %d: %w", r.ID, err)
			}
			batch.Records = append(batch.Records, rec)
		}

		sent := time.Now()
		if err := s.send(ctx, batch); err != nil {
			return err
		}
		if err := srv.receiveAck(ctx, s, seq); err != nil {
			return err
		}
		if err := s.fire(EventBatch); err != nil {
			return err
		}
		metrics.RecordBatch(metrics.SideServer, len(batch.Records),
			time.Since(sent))
		s.log.Debug("batch acknowledged", "seq", seq,
			"records", len(batch.Records))

		sum.Batches++
		sum.Records += uint64(len(batch.Records))
	}

	if err := s.fire(EventExhausted); err != nil {
		return err
	}
	seq++
	err = s.send(ctx, &Done{
		Seq:   seq,
		Count: sum.Records,
	})
	if err != nil {
		return err
	}
	if err := srv.receiveAck(ctx, s, seq); err != nil {
		return err
	}
	return s.fire(EventVerified)
}

func (srv *Server) receiveAck(ctx context.Context, s *session,
	seq uint64) error {

	msg, err := s.receive(ctx)
	if err != nil {
		return err
	}
	ack, ok := msg.(*Ack)
	if !ok {
		return unexpected(msg, MsgAck)
	}
	if ack.Seq != seq {
		return fmt.Errorf("%w: acknowledged %d, expected %d",
			ErrSequence, ack.Seq, seq)
	}
	return nil
}

// Convert converts the legacy record into the role's replicated
// record. The legacy shares are reconstructed and shared again with
// randomness keyed by the server seed and the identity.
func (srv *Server) Convert(r store.LegacyRecord, role shares.Role) (
	Record, error) {

	random := rng.NewStream(srv.Seed, r.ID)
	code, err := shares.Convert(random, r.Code)
	if err != nil {
		return Record{}, fmt.Errorf("code: %w", err)
	}
	mask, err := shares.Convert(random, r.Mask)
	if err != nil {
		return Record{}, fmt.Errorf("mask: %w", err)
	}
	return Record{
		ID:   r.ID,
		Code: code.Pair(role),
		Mask: mask.Pair(role),
	}, nil
}
