//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package rng

import (
	"crypto/rand"
	"testing"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/stretchr/testify/require"
)

func TestStreamDeterministic(t *testing.T) {
	seed, err := NewSeed(rand.Reader)
	require.NoError(t, err)

	a := make([]byte, 100)
	b := make([]byte, 100)
	NewStream(seed, 7).Read(a)
	NewStream(seed, 7).Read(b)
	require.Equal(t, a, b)

	NewStream(seed, 8).Read(b)
	require.NotEqual(t, a, b)

	e := make([]field.Element, 1000)
	NewStream(seed, 1).Elements(e)
	for _, v := range e {
		require.Less(t, uint32(v), uint32(field.P))
	}
}

func TestCorrelatedMasksSumToZero(t *testing.T) {
	var seeds [3]Seed
	for i := range seeds {
		var err error
		seeds[i], err = NewSeed(rand.Reader)
		require.NoError(t, err)
	}

	const n = 4096
	var rngs [3]*CorrRNG
	for i := range rngs {
		rngs[i] = NewCorrRNG(seeds[i], seeds[(i+2)%3], 0)
	}
	var m0, m1 [3][]field.Element
	for i := range rngs {
		m0[i], m1[i] = rngs[i].Masks(n)
	}
	for j := 0; j < n; j++ {
		var sum field.Element
		for i := 0; i < 3; i++ {
			sum = field.Add(sum, field.Sub(m0[i][j], m1[i][j]))
		}
		require.Equal(t, field.Element(0), sum, "element %d", j)
	}
}

func TestExchangeSeeds(t *testing.T) {
	// Ring 0 -> 1 -> 2 -> 0 over in-memory pipes. ring[i] connects
	// party i to party i+1.
	type link struct {
		out *p2p.Conn
		in  *p2p.Conn
	}
	var ring [3]link
	for i := range ring {
		ring[i].out, ring[i].in = p2p.Pipe()
	}

	var seeds [3]Seed
	for i := range seeds {
		var err error
		seeds[i], err = NewSeed(rand.Reader)
		require.NoError(t, err)
	}

	type result struct {
		party int
		seed  Seed
		err   error
	}
	ch := make(chan result, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			next := ring[i].out
			prev := ring[(i+2)%3].in
			s, err := ExchangeSeeds(next, prev, seeds[i])
			ch <- result{i, s, err}
		}(i)
	}
	for i := 0; i < 3; i++ {
		r := <-ch
		require.NoError(t, r.err)
		require.Equal(t, seeds[(r.party+2)%3], r.seed)
	}
}
