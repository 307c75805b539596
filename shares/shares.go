//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package shares implements the secret sharing schemes of the
// system: the replicated 2-of-3 additive scheme used at runtime and
// the legacy Shamir scheme the stored databases were created with.
package shares

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/text/superscript"
)

// NumParties defines the number of computation parties.
const NumParties = 3

var (
	// ErrRole is returned for party roles outside [0, NumParties).
	ErrRole = errors.New("shares: invalid party role")

	// ErrLength is returned when share vectors have mismatched
	// lengths.
	ErrLength = errors.New("shares: share length mismatch")
)

// Role identifies a computation party.
type Role int

// Valid tests if the role is a valid party role.
func (r Role) Valid() bool {
	return r >= 0 && r < NumParties
}

// Next returns the role following r.
func (r Role) Next() Role {
	return (r + 1) % NumParties
}

// Prev returns the role preceding r.
func (r Role) Prev() Role {
	return (r + NumParties - 1) % NumParties
}

// Holds returns the indices of the two additive shares the role
// holds: share-0 is the role's own share and share-1 is the share of
// the previous role.
func (r Role) Holds() [2]int {
	return [2]int{int(r), int(r.Prev())}
}

func (r Role) String() string {
	return "P" + superscript.Itoa(int(r))
}

// ParseRole parses a party role from its integer value.
func ParseRole(v int) (Role, error) {
	r := Role(v)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrRole, v)
	}
	return r, nil
}

// Triple holds the three additive shares of a vector. The shares
// sum to the secret vector mod P.
type Triple [NumParties][]field.Element

// Pair holds the two additive shares a role keeps.
type Pair struct {
	Share0 []field.Element
	Share1 []field.Element
}

// Len returns the length of the shared vector.
func (p Pair) Len() int {
	return len(p.Share0)
}

// Len returns the length of the shared vector.
func (t Triple) Len() int {
	return len(t[0])
}

// Pair returns the pair of shares the role holds.
func (t Triple) Pair(r Role) Pair {
	idx := r.Holds()
	return Pair{
		Share0: t[idx[0]],
		Share1: t[idx[1]],
	}
}

// Validate checks that all shares have the same length.
func (t Triple) Validate() error {
	for i := 1; i < NumParties; i++ {
		if len(t[i]) != len(t[0]) {
			return fmt.Errorf("%w: share %d has %d elements, share 0 %d",
				ErrLength, i, len(t[i]), len(t[0]))
		}
	}
	return nil
}

// Reconstruct returns the secret vector.
func (t Triple) Reconstruct() ([]field.Element, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	result := make([]field.Element, t.Len())
	for i := range result {
		result[i] = field.Sum(t[0][i], t[1][i], t[2][i])
	}
	return result, nil
}

// Equal tests if the triples hold identical shares.
func (t Triple) Equal(o Triple) bool {
	for i := 0; i < NumParties; i++ {
		if len(t[i]) != len(o[i]) {
			return false
		}
		for j := range t[i] {
			if t[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// Split creates fresh replicated shares of the values. The random
// argument provides the entropy for the two free shares.
func Split(random io.Reader, values []field.Element) (Triple, error) {
	var t Triple
	s0, err := RandomElements(random, len(values))
	if err != nil {
		return t, err
	}
	s1, err := RandomElements(random, len(values))
	if err != nil {
		return t, err
	}
	s2 := make([]field.Element, len(values))
	for i, v := range values {
		s2[i] = field.Sub(field.Sub(v, s0[i]), s1[i])
	}
	t[0] = s0
	t[1] = s1
	t[2] = s2
	return t, nil
}

// Combine reconstructs the secret vector from the pairs of two
// distinct roles. Any two roles together hold all three shares.
func Combine(a Pair, ra Role, b Pair, rb Role) ([]field.Element, error) {
	if !ra.Valid() || !rb.Valid() {
		return nil, ErrRole
	}
	if ra == rb {
		return nil, fmt.Errorf("%w: duplicate role %v", ErrRole, ra)
	}
	var t Triple
	for _, h := range []struct {
		role Role
		pair Pair
	}{{ra, a}, {rb, b}} {
		idx := h.role.Holds()
		t[idx[0]] = h.pair.Share0
		t[idx[1]] = h.pair.Share1
	}
	return t.Reconstruct()
}

// RandomElements reads n uniformly distributed field elements from
// random. Each element is a 32-bit value reduced mod P; the
// resulting bias is below 2^-16.
func RandomElements(random io.Reader, n int) ([]field.Element, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return nil, fmt.Errorf("shares: random: %w", err)
	}
	result := make([]field.Element, n)
	for i := range result {
		result[i] = field.Element(binary.BigEndian.Uint32(buf[4*i:]) % field.P)
	}
	return result, nil
}
