//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package reshare

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/metrics"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

// Range defines the identity range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) String() string {
	if r.End == math.MaxUint64 {
		return fmt.Sprintf("[%d, ...)", r.Start)
	}
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Split splits the range into n consecutive ranges of nearly equal
// size. An End of zero means the range is open; open ranges are not
// split.
func Split(start, end uint64, n int) []Range {
	if end == 0 {
		return []Range{{Start: start, End: math.MaxUint64}}
	}
	if n <= 1 || end-start < uint64(n) {
		return []Range{{Start: start, End: end}}
	}
	size := (end - start) / uint64(n)
	extra := (end - start) % uint64(n)

	var result []Range
	pos := start
	for i := 0; i < n; i++ {
		next := pos + size
		if uint64(i) < extra {
			next++
		}
		result = append(result, Range{Start: pos, End: next})
		pos = next
	}
	return result
}

// Client pulls the role's replicated shares from a server and stores
// them into the replicated store.
type Client struct {
	Store     store.ReplicatedStore
	Role      shares.Role
	Eye       iris.Eye
	BatchSize int

	// Timeout is the stall timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// Insecure allows plaintext connections.
	Insecure bool

	Log *logging.Logger
}

// Run runs a session for the range over the connection. The session
// closes the connection.
func (c *Client) Run(ctx context.Context, conn *p2p.Conn, r Range) (
	*Summary, error) {

	s := newSession(ctx, conn, c.Timeout, c.Log)
	defer s.close()

	s.id = uuid.New()
	s.log = s.log.With("session", s.id, "role", c.Role, "range", r)

	sum := &Summary{
		Role: c.Role,
	}
	err := c.run(ctx, s, r, sum)
	if err != nil {
		err = s.fail(err)
	}
	sum.Session = s.id
	sum.State = s.state

	metrics.RecordSession(metrics.SideClient, err)
	return sum, err
}

func (c *Client) run(ctx context.Context, s *session, r Range,
	sum *Summary) error {

	if !c.Role.Valid() {
		return fmt.Errorf("%w: %v", shares.ErrRole, c.Role)
	}
	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		return fmt.Errorf("%w: invalid batch size %d", ErrProtocol, batchSize)
	}

	if err := s.authenticate(ctx, c.Insecure); err != nil {
		return err
	}
	if err := s.fire(EventAuthenticated); err != nil {
		return err
	}
	err := s.send(ctx, &Hello{
		Session:   s.id,
		Role:      c.Role,
		Eye:       c.Eye,
		Start:     r.Start,
		End:       r.End,
		BatchSize: batchSize,
	})
	if err != nil {
		return err
	}
	msg, err := s.receive(ctx)
	if err != nil {
		return err
	}
	accept, ok := msg.(*Accept)
	if !ok {
		return unexpected(msg, MsgAccept)
	}
	if err := s.fire(EventStart); err != nil {
		return err
	}
	s.log.Info("session started", "peer", s.conn.PeerName(),
		"total", accept.Total)

	expected := uint64(1)
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *Batch:
			if m.Seq != expected {
				return fmt.Errorf("%w: received batch %d, expected %d",
					ErrSequence, m.Seq, expected)
			}
			if len(m.Records) > batchSize {
				return fmt.Errorf("%w: batch of %d records exceeds %d",
					ErrProtocol, len(m.Records), batchSize)
			}
			received := time.Now()
			if err := c.store(ctx, r, m.Records); err != nil {
				return err
			}
			if err := s.send(ctx, &Ack{Seq: m.Seq}); err != nil {
				return err
			}
			if err := s.fire(EventBatch); err != nil {
				return err
			}
			metrics.RecordBatch(metrics.SideClient, len(m.Records),
				time.Since(received))
			s.log.Debug("batch stored", "seq", m.Seq,
				"records", len(m.Records))

			sum.Batches++
			sum.Records += uint64(len(m.Records))
			expected++

		case *Done:
			if err := s.fire(EventExhausted); err != nil {
				return err
			}
			if m.Seq != expected {
				return fmt.Errorf("%w: received done %d, expected %d",
					ErrSequence, m.Seq, expected)
			}
			if m.Count != sum.Records || sum.Records != accept.Total {
				return fmt.Errorf("%w: received %d, done %d, total %d",
					ErrCountMismatch, sum.Records, m.Count, accept.Total)
			}
			if err := s.send(ctx, &Ack{Seq: m.Seq}); err != nil {
				return err
			}
			s.log.Info("session verified", "records", sum.Records)
			return s.fire(EventVerified)

		default:
			return unexpected(msg, MsgBatch)
		}
	}
}

// store validates the batch and upserts its records. Nothing is
// stored from a batch with an invalid record. The batch is
// acknowledged only after all of its records are stored.
func (c *Client) store(ctx context.Context, r Range, records []Record) error {
	for i, rec := range records {
		if rec.ID < r.Start || rec.ID >= r.End {
			return fmt.Errorf("%w: identity %d outside range %v",
				ErrProtocol, rec.ID, r)
		}
		if i > 0 && rec.ID <= records[i-1].ID {
			return fmt.Errorf("%w: identity %d out of order", ErrProtocol,
				rec.ID)
		}
		n := rec.Code.Len()
		if len(rec.Code.Share1) != n || rec.Mask.Len() != n ||
			len(rec.Mask.Share1) != n {
			return fmt.Errorf("%w: identity %d: %w", ErrProtocol, rec.ID,
				shares.ErrLength)
		}
	}
	for _, rec := range records {
		err := c.Store.Upsert(ctx, store.ReplicatedRecord{
			ID:   rec.ID,
			Role: c.Role,
			Code: rec.Code,
			Mask: rec.Mask,
		})
		if err != nil {
			return fmt.Errorf("identity %d: %w", rec.ID, err)
		}
	}
	return nil
}

// Dialer creates a connection to the server.
type Dialer func(ctx context.Context) (*p2p.Conn, error)

// Result is the outcome of one session of RunSessions.
type Result struct {
	Range   Range
	Summary *Summary
	Err     error
}

// RunSessions runs one session per range concurrently. The sessions
// are independent: a failing session does not cancel the others.
func (c *Client) RunSessions(ctx context.Context, dial Dialer,
	ranges []Range) []Result {

	results := make([]Result, len(ranges))

	var g errgroup.Group
	for idx, r := range ranges {
		results[idx].Range = r
		g.Go(func() error {
			conn, err := dial(ctx)
			if err != nil {
				results[idx].Err = fmt.Errorf("dial: %w", err)
				metrics.RecordSession(metrics.SideClient, err)
				return nil
			}
			results[idx].Summary, results[idx].Err = c.Run(ctx, conn, r)
			return nil
		})
	}
	g.Wait()

	return results
}
