//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package rng implements the ChaCha20 based pseudorandom generators
// of the parties. The correlated generator produces masks that sum
// to zero across the three parties.
package rng

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/p2p"
)

// SeedSize defines the PRG seed size in bytes.
const SeedSize = chacha20.KeySize

// Seed is a PRG seed.
type Seed [SeedSize]byte

// NewSeed creates a random seed from the entropy source.
func NewSeed(random io.Reader) (Seed, error) {
	var seed Seed
	if _, err := io.ReadFull(random, seed[:]); err != nil {
		return seed, fmt.Errorf("rng: seed: %w", err)
	}
	return seed, nil
}

// Stream is a ChaCha20 keystream reader. The stream is a
// deterministic function of the seed and the stream ID.
type Stream struct {
	cipher *chacha20.Cipher
}

// NewStream creates a keystream for the seed and stream ID.
func NewStream(seed Seed, id uint64) *Stream {
	var nonce [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], id)

	// Key and nonce sizes are fixed so this can't fail.
	c, _ := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	return &Stream{
		cipher: c,
	}
}

// Read fills data with keystream bytes. It never fails.
func (s *Stream) Read(data []byte) (int, error) {
	clear(data)
	s.cipher.XORKeyStream(data, data)
	return len(data), nil
}

// Elements fills out with field elements from the stream.
func (s *Stream) Elements(out []field.Element) {
	buf := make([]byte, 4*len(out))
	s.Read(buf)
	for i := range out {
		out[i] = field.Element(binary.LittleEndian.Uint32(buf[4*i:]) % field.P)
	}
}

// CorrRNG generates correlated masks. A party's first mask stream is
// keyed with its own seed and the second stream with the seed of the
// previous party. Since every seed is used once as the first and
// once as the second stream, the differences of the masks sum to
// zero over all parties.
type CorrRNG struct {
	own  *Stream
	prev *Stream
}

// NewCorrRNG creates a correlated generator from the party's own
// seed and the previous party's seed. The stream ID separates
// independent generators sharing the same seeds.
func NewCorrRNG(own, prev Seed, stream uint64) *CorrRNG {
	return &CorrRNG{
		own:  NewStream(own, stream),
		prev: NewStream(prev, stream),
	}
}

// Fill fills m0 from the own stream and m1 from the previous party's
// stream.
func (c *CorrRNG) Fill(m0, m1 []field.Element) {
	c.own.Elements(m0)
	c.prev.Elements(m1)
}

// Masks returns n correlated mask pairs.
func (c *CorrRNG) Masks(n int) (m0, m1 []field.Element) {
	m0 = make([]field.Element, n)
	m1 = make([]field.Element, n)
	c.Fill(m0, m1)
	return
}

// ExchangeSeeds sends the party's own seed to the next party and
// receives the previous party's seed. The send and receive run
// concurrently so that the ring of parties does not deadlock.
func ExchangeSeeds(next, prev *p2p.Conn, own Seed) (Seed, error) {
	var result Seed

	sendErr := make(chan error, 1)
	go func() {
		if err := next.SendData(own[:]); err != nil {
			sendErr <- err
			return
		}
		sendErr <- next.Flush()
	}()

	data, err := prev.ReceiveData()
	if serr := <-sendErr; serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return result, fmt.Errorf("rng: seed exchange: %w", err)
	}
	if len(data) != SeedSize {
		return result, fmt.Errorf("rng: invalid seed length %d", len(data))
	}
	copy(result[:], data)
	return result, nil
}
