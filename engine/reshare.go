//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/shares"
)

// Reshare converts the party's additive share into a replicated
// pair. The party sends its share to the next party and receives the
// share of the previous party; the send and the receive run
// concurrently so the ring of parties can't deadlock.
func Reshare(ctx context.Context, next, prev *p2p.Conn,
	share []field.Element) (shares.Pair, error) {

	var received []field.Element

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := next.SendElements(share); err != nil {
			return err
		}
		return next.Flush()
	})
	g.Go(func() error {
		if deadline, ok := ctx.Deadline(); ok {
			if err := prev.SetReadDeadline(deadline); err == nil {
				defer prev.SetReadDeadline(time.Time{})
			}
		}
		v, err := prev.ReceiveElements(len(share))
		if err != nil {
			return err
		}
		if len(v) != len(share) {
			return fmt.Errorf("%w: received %d elements, expected %d",
				shares.ErrLength, len(v), len(share))
		}
		received = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return shares.Pair{}, fmt.Errorf("engine: reshare: %w", err)
	}
	return shares.Pair{
		Share0: share,
		Share1: received,
	}, nil
}
