//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package reshare

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/rng"
	"github.com/markkurossi/irismpc/seed"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

const (
	testSeed   = 7
	testLength = 64
)

func legacyStore(t *testing.T, count uint64) *store.MemoryLegacy {
	s := store.NewMemoryLegacy()
	_, err := seed.Generate(context.Background(), nil, s, seed.Options{
		Count:  count,
		Length: testLength,
		Seed:   testSeed,
	})
	require.NoError(t, err)
	return s
}

func newServer(legacy store.LegacyStore) *Server {
	return &Server{
		Legacy:   legacy,
		Seed:     rng.Seed{1, 2, 3},
		Timeout:  5 * time.Second,
		Insecure: true,
	}
}

func newClient(role shares.Role, s store.ReplicatedStore) *Client {
	return &Client{
		Store:     s,
		Role:      role,
		BatchSize: 3,
		Timeout:   5 * time.Second,
		Insecure:  true,
	}
}

type serverResult struct {
	sum *Summary
	err error
}

// pipeDialer returns a dialer that runs a server session on the other
// end of an in-memory pipe.
func pipeDialer(srv *Server, results chan<- serverResult) Dialer {
	return func(ctx context.Context) (*p2p.Conn, error) {
		c, s := p2p.Pipe()
		go func() {
			sum, err := srv.Handle(ctx, s)
			if results != nil {
				results <- serverResult{sum, err}
			}
		}()
		return c, nil
	}
}

func migrate(t *testing.T, srv *Server, client *Client, r Range) *Summary {
	ctx := context.Background()
	results := make(chan serverResult, 1)
	conn, err := pipeDialer(srv, results)(ctx)
	require.NoError(t, err)

	sum, err := client.Run(ctx, conn, r)
	require.NoError(t, err)
	require.Equal(t, Closed, sum.State)

	result := <-results
	require.NoError(t, result.err)
	require.Equal(t, Closed, result.sum.State)
	require.Equal(t, sum.Session, result.sum.Session)
	require.Equal(t, sum.Records, result.sum.Records)

	return sum
}

func TestTransition(t *testing.T) {
	s := Connected
	for _, e := range []Event{
		EventAuthenticated, EventStart, EventBatch, EventBatch,
		EventExhausted, EventVerified,
	} {
		next, err := Transition(s, e)
		require.NoError(t, err)
		s = next
	}
	require.Equal(t, Closed, s)

	for _, st := range []State{
		Connected, Authenticated, StreamingBatches, Finalizing,
	} {
		next, err := Transition(st, EventFail)
		require.NoError(t, err)
		require.Equal(t, Error, next)
	}

	next, err := Transition(Connected, EventBatch)
	require.ErrorIs(t, err, ErrTransition)
	require.Equal(t, Error, next)

	next, err = Transition(Authenticated, EventExhausted)
	require.ErrorIs(t, err, ErrTransition)
	require.Equal(t, Error, next)

	_, err = Transition(Closed, EventFail)
	require.ErrorIs(t, err, ErrTransition)
	_, err = Transition(Error, EventStart)
	require.ErrorIs(t, err, ErrTransition)
}

func TestMessages(t *testing.T) {
	msgs := []Message{
		&Hello{
			Session:   uuid.New(),
			Role:      2,
			Eye:       iris.Right,
			Start:     10,
			End:       math.MaxUint64,
			BatchSize: 64,
		},
		&Accept{Total: 1 << 40},
		&Batch{
			Seq: 3,
			Records: []Record{
				{
					ID: 42,
					Code: shares.Pair{
						Share0: []field.Element{1, 2},
						Share1: []field.Element{field.P - 1, 0},
					},
					Mask: shares.Pair{
						Share0: []field.Element{3, 4},
						Share1: []field.Element{5, 6},
					},
				},
			},
		},
		&Ack{Seq: 3},
		&Done{Seq: 4, Count: 1},
		&Abort{Reason: "count mismatch"},
	}

	c0, c1 := p2p.Pipe()
	go func() {
		for _, msg := range msgs {
			if err := SendMessage(c0, msg); err != nil {
				break
			}
		}
		c0.Close()
	}()
	for _, msg := range msgs {
		got, err := ReceiveMessage(c1)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}
	require.NoError(t, c1.Close())
}

func TestUnknownMessage(t *testing.T) {
	c0, c1 := p2p.Pipe()
	go func() {
		c0.SendByte(0xff)
		c0.Close()
	}()
	_, err := ReceiveMessage(c1)
	require.ErrorIs(t, err, ErrProtocol)
	c1.Close()
}

func TestRoundTrip(t *testing.T) {
	const count = 10
	ctx := context.Background()
	srv := newServer(legacyStore(t, count))

	var stores [shares.NumParties]*store.MemoryReplicated
	for role := range stores {
		stores[role] = store.NewMemoryReplicated()
		sum := migrate(t, srv, newClient(shares.Role(role), stores[role]),
			Range{Start: 0, End: count})
		require.Equal(t, uint64(count), sum.Records)
		require.Equal(t, uint64(4), sum.Batches)
	}

	for id := uint64(0); id < count; id++ {
		expected := seed.Code(testSeed, id, testLength)
		for a := 0; a < shares.NumParties; a++ {
			b := (a + 1) % shares.NumParties
			ra, err := stores[a].Read(ctx, id)
			require.NoError(t, err)
			rb, err := stores[b].Read(ctx, id)
			require.NoError(t, err)
			require.Equal(t, shares.Role(a), ra.Role)

			code, err := shares.Combine(ra.Code, ra.Role, rb.Code, rb.Role)
			require.NoError(t, err)
			mask, err := shares.Combine(ra.Mask, ra.Role, rb.Mask, rb.Role)
			require.NoError(t, err)

			decoded, err := iris.Decode(code, mask)
			require.NoError(t, err)
			require.Equal(t, expected, decoded)
		}
	}
}

func TestIdempotent(t *testing.T) {
	ctx := context.Background()
	srv := newServer(legacyStore(t, 5))
	dst := store.NewMemoryReplicated()
	client := newClient(1, dst)

	migrate(t, srv, client, Range{Start: 0, End: 5})
	var first []store.ReplicatedRecord
	for id := uint64(0); id < 5; id++ {
		r, err := dst.Read(ctx, id)
		require.NoError(t, err)
		first = append(first, r)
	}

	migrate(t, srv, client, Range{Start: 0, End: 5})
	ids, err := dst.IDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3, 4}, ids)
	for id := uint64(0); id < 5; id++ {
		r, err := dst.Read(ctx, id)
		require.NoError(t, err)
		require.Equal(t, first[id], r)
	}
}

func TestClippedRange(t *testing.T) {
	srv := newServer(legacyStore(t, 4))
	client := newClient(0, store.NewMemoryReplicated())

	sum := migrate(t, srv, client, Range{Start: 2, End: math.MaxUint64})
	require.Equal(t, uint64(2), sum.Records)

	sum = migrate(t, srv, client, Range{Start: 10, End: 20})
	require.Zero(t, sum.Records)
	require.Zero(t, sum.Batches)
}

func TestSparseIdentities(t *testing.T) {
	ctx := context.Background()
	legacy := store.NewMemoryLegacy()
	for _, opts := range []seed.Options{
		{Start: 100, Count: 10},
		{Start: 200, Count: 3},
	} {
		opts.Length = testLength
		opts.Seed = testSeed
		_, err := seed.Generate(ctx, nil, legacy, opts)
		require.NoError(t, err)
	}
	srv := newServer(legacy)

	dst := store.NewMemoryReplicated()
	sum := migrate(t, srv, newClient(0, dst), Range{Start: 100, End: 110})
	require.Equal(t, uint64(10), sum.Records)
	require.Equal(t, uint64(4), sum.Batches)

	sum = migrate(t, srv, newClient(0, dst), Range{Start: 0, End: math.MaxUint64})
	require.Equal(t, uint64(13), sum.Records)
	require.Equal(t, uint64(5), sum.Batches)

	ids, err := dst.IDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 13)
	require.Equal(t, uint64(100), ids[0])
	require.Equal(t, uint64(202), ids[12])
}

func TestEyeMismatch(t *testing.T) {
	srv := newServer(legacyStore(t, 3))
	client := newClient(0, store.NewMemoryReplicated())
	client.Eye = iris.Right

	conn, err := pipeDialer(srv, nil)(context.Background())
	require.NoError(t, err)
	_, err = client.Run(context.Background(), conn, Range{Start: 0, End: 3})
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorContains(t, err, "eye")
}

// fake runs fn with the peer end of a pipe and returns the client
// end.
func fake(t *testing.T, fn func(conn *p2p.Conn) error) (*p2p.Conn,
	<-chan error) {

	c, s := p2p.Pipe()
	done := make(chan error, 1)
	go func() {
		err := fn(s)
		s.Close()
		done <- err
	}()
	return c, done
}

func receive[T Message](conn *p2p.Conn) (T, error) {
	var zero T
	msg, err := ReceiveMessage(conn)
	if err != nil {
		return zero, err
	}
	m, ok := msg.(T)
	if !ok {
		return zero, errors.New("unexpected message " + msg.Type().String())
	}
	return m, nil
}

func TestOutOfOrderAck(t *testing.T) {
	ctx := context.Background()
	srv := newServer(legacyStore(t, 3))

	c, s := p2p.Pipe()
	results := make(chan serverResult, 1)
	go func() {
		sum, err := srv.Handle(ctx, s)
		results <- serverResult{sum, err}
	}()

	require.NoError(t, SendMessage(c, &Hello{
		Session:   uuid.New(),
		Role:      0,
		Start:     0,
		End:       3,
		BatchSize: 1,
	}))
	accept, err := receive[*Accept](c)
	require.NoError(t, err)
	require.Equal(t, uint64(3), accept.Total)

	batch, err := receive[*Batch](c)
	require.NoError(t, err)
	require.Equal(t, uint64(1), batch.Seq)
	require.Len(t, batch.Records, 1)

	require.NoError(t, SendMessage(c, &Ack{Seq: 2}))

	// The server aborts and sends no further batches.
	abort, err := receive[*Abort](c)
	require.NoError(t, err)
	require.Contains(t, abort.Reason, "sequence")
	_, err = ReceiveMessage(c)
	require.Error(t, err)

	result := <-results
	require.ErrorIs(t, result.err, ErrSequence)
	var serr *SessionError
	require.ErrorAs(t, result.err, &serr)
	require.Equal(t, StreamingBatches, serr.State)
	require.Equal(t, Error, result.sum.State)
	require.Zero(t, result.sum.Batches)
	c.Close()
}

func TestDuplicateBatch(t *testing.T) {
	dst := store.NewMemoryReplicated()
	record := Record{
		ID: 0,
		Code: shares.Pair{
			Share0: []field.Element{1},
			Share1: []field.Element{2},
		},
		Mask: shares.Pair{
			Share0: []field.Element{1},
			Share1: []field.Element{0},
		},
	}
	conn, done := fake(t, func(conn *p2p.Conn) error {
		if _, err := receive[*Hello](conn); err != nil {
			return err
		}
		if err := SendMessage(conn, &Accept{Total: 2}); err != nil {
			return err
		}
		batch := &Batch{Seq: 1, Records: []Record{record}}
		if err := SendMessage(conn, batch); err != nil {
			return err
		}
		if _, err := receive[*Ack](conn); err != nil {
			return err
		}
		if err := SendMessage(conn, batch); err != nil {
			return err
		}
		_, err := receive[*Abort](conn)
		return err
	})

	sum, err := newClient(0, dst).Run(context.Background(), conn,
		Range{Start: 0, End: 2})
	require.ErrorIs(t, err, ErrSequence)
	require.Equal(t, Error, sum.State)
	require.Equal(t, uint64(1), sum.Batches)
	require.NoError(t, <-done)

	// The acknowledged batch is stored.
	_, err = dst.Read(context.Background(), 0)
	require.NoError(t, err)
}

func TestRejectedBatch(t *testing.T) {
	dst := store.NewMemoryReplicated()
	record := func(id uint64) Record {
		return Record{
			ID: id,
			Code: shares.Pair{
				Share0: []field.Element{1},
				Share1: []field.Element{2},
			},
			Mask: shares.Pair{
				Share0: []field.Element{1},
				Share1: []field.Element{0},
			},
		}
	}
	conn, done := fake(t, func(conn *p2p.Conn) error {
		if _, err := receive[*Hello](conn); err != nil {
			return err
		}
		if err := SendMessage(conn, &Accept{Total: 2}); err != nil {
			return err
		}
		err := SendMessage(conn, &Batch{
			Seq:     1,
			Records: []Record{record(0), record(999)},
		})
		if err != nil {
			return err
		}
		_, err = receive[*Abort](conn)
		return err
	})

	sum, err := newClient(0, dst).Run(context.Background(), conn,
		Range{Start: 0, End: 10})
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorContains(t, err, "outside range")
	require.Zero(t, sum.Batches)
	require.NoError(t, <-done)

	// Nothing of the rejected batch is stored.
	ids, err := dst.IDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCountMismatch(t *testing.T) {
	conn, done := fake(t, func(conn *p2p.Conn) error {
		if _, err := receive[*Hello](conn); err != nil {
			return err
		}
		if err := SendMessage(conn, &Accept{Total: 2}); err != nil {
			return err
		}
		err := SendMessage(conn, &Batch{
			Seq: 1,
			Records: []Record{{
				ID: 1,
				Code: shares.Pair{
					Share0: []field.Element{1},
					Share1: []field.Element{2},
				},
				Mask: shares.Pair{
					Share0: []field.Element{1},
					Share1: []field.Element{0},
				},
			}},
		})
		if err != nil {
			return err
		}
		if _, err := receive[*Ack](conn); err != nil {
			return err
		}
		if err := SendMessage(conn, &Done{Seq: 2, Count: 1}); err != nil {
			return err
		}
		_, err = receive[*Abort](conn)
		return err
	})

	sum, err := newClient(2, store.NewMemoryReplicated()).Run(
		context.Background(), conn, Range{Start: 0, End: 2})
	require.ErrorIs(t, err, ErrCountMismatch)
	var serr *SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, Finalizing, serr.State)
	require.Equal(t, Error, sum.State)
	require.NoError(t, <-done)
}

func TestStall(t *testing.T) {
	conn, done := fake(t, func(conn *p2p.Conn) error {
		if _, err := receive[*Hello](conn); err != nil {
			return err
		}
		_, err := receive[*Abort](conn)
		return err
	})

	client := newClient(0, store.NewMemoryReplicated())
	client.Timeout = 50 * time.Millisecond

	sum, err := client.Run(context.Background(), conn, Range{Start: 0, End: 1})
	require.ErrorIs(t, err, ErrStalled)
	require.Equal(t, Error, sum.State)
	require.NoError(t, <-done)
}

func TestCanceled(t *testing.T) {
	conn, done := fake(t, func(conn *p2p.Conn) error {
		if _, err := receive[*Hello](conn); err != nil {
			return err
		}
		// Abort or a closed connection.
		ReceiveMessage(conn)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newClient(0, store.NewMemoryReplicated()).Run(ctx, conn,
		Range{Start: 0, End: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, <-done)
}

func TestUnauthenticated(t *testing.T) {
	conn, done := fake(t, func(conn *p2p.Conn) error {
		_, err := receive[*Abort](conn)
		return err
	})

	client := newClient(0, store.NewMemoryReplicated())
	client.Insecure = false

	sum, err := client.Run(context.Background(), conn, Range{Start: 0, End: 1})
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Equal(t, Error, sum.State)
	require.NoError(t, <-done)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 3))
	require.Equal(t, "ab", truncate("abc", 2))
	// "ä" is two bytes and is not split.
	require.Equal(t, "a", truncate("aä", 2))
	require.Equal(t, "aä", truncate("aä", 3))

	c0, c1 := p2p.Pipe()
	go func() {
		SendMessage(c0, &Abort{Reason: strings.Repeat("€", MaxReason)})
		c0.Close()
	}()
	abort, err := receive[*Abort](c1)
	require.NoError(t, err)
	require.LessOrEqual(t, len(abort.Reason), MaxReason)
	require.True(t, utf8.ValidString(abort.Reason))
	c1.Close()
}

func TestSplit(t *testing.T) {
	require.Equal(t, []Range{{0, 4}, {4, 7}, {7, 10}}, Split(0, 10, 3))
	require.Equal(t, []Range{{5, 7}}, Split(5, 7, 4))
	require.Equal(t, []Range{{3, math.MaxUint64}}, Split(3, 0, 2))
}

func TestRunSessions(t *testing.T) {
	ctx := context.Background()
	srv := newServer(legacyStore(t, 10))
	dst := store.NewMemoryReplicated()
	client := newClient(2, dst)

	ranges := Split(0, 10, 3)
	results := client.RunSessions(ctx, pipeDialer(srv, nil), ranges)
	require.Len(t, results, 3)
	for i, result := range results {
		require.NoError(t, result.Err)
		require.Equal(t, ranges[i], result.Range)
		require.Equal(t, Closed, result.Summary.State)
	}
	ids, err := dst.IDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	// A failing session does not affect the others.
	failing := errors.New("connection refused")
	dial := pipeDialer(srv, nil)
	results = client.RunSessions(ctx, func(ctx context.Context) (
		*p2p.Conn, error) {
		return nil, failing
	}, ranges[:1])
	require.ErrorIs(t, results[0].Err, failing)

	results = client.RunSessions(ctx, dial, ranges)
	for _, result := range results {
		require.NoError(t, result.Err)
	}
}
