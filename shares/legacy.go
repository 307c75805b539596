//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package shares

import (
	"errors"
	"fmt"
	"io"

	"github.com/markkurossi/irismpc/field"
)

var (
	// ErrInsufficient is returned when too few legacy shares are
	// available for reconstruction.
	ErrInsufficient = errors.New("shares: insufficient legacy shares")

	// ErrInconsistent is returned when redundant legacy shares do
	// not lie on the same sharing polynomial.
	ErrInconsistent = errors.New("shares: inconsistent legacy shares")
)

// LegacyThreshold is the number of legacy shares needed to
// reconstruct a value: the legacy scheme uses degree-1 polynomials.
const LegacyThreshold = 2

// LegacyShare is one Shamir share of a vector: the sharing
// polynomials evaluated at X.
type LegacyShare struct {
	X field.Element
	Y []field.Element
}

// LegacyPoint returns the evaluation point of the role in the legacy
// scheme.
func LegacyPoint(r Role) field.Element {
	return field.Element(r + 1)
}

// ShamirSplit shares the values with random degree-1 polynomials,
// producing one share for each party.
func ShamirSplit(random io.Reader, values []field.Element) (
	[NumParties]LegacyShare, error) {

	var result [NumParties]LegacyShare

	coeffs, err := RandomElements(random, len(values))
	if err != nil {
		return result, err
	}
	for i := 0; i < NumParties; i++ {
		x := LegacyPoint(Role(i))
		y := make([]field.Element, len(values))
		for j, v := range values {
			y[j] = field.Add(v, field.Mul(coeffs[j], x))
		}
		result[i] = LegacyShare{
			X: x,
			Y: y,
		}
	}
	return result, nil
}

// LagrangeAtZero returns the Lagrange coefficients for interpolating
// the value at zero from the points xs.
func LagrangeAtZero(xs []field.Element) ([]field.Element, error) {
	result := make([]field.Element, len(xs))
	for i, xi := range xs {
		num := field.Element(1)
		den := field.Element(1)
		for j, xj := range xs {
			if i == j {
				continue
			}
			if xi == xj {
				return nil, fmt.Errorf("shares: duplicate point %d", xi)
			}
			num = field.Mul(num, xj)
			den = field.Mul(den, field.Sub(xj, xi))
		}
		inv, err := field.Inv(den)
		if err != nil {
			return nil, err
		}
		result[i] = field.Mul(num, inv)
	}
	return result, nil
}

// ShamirReconstruct reconstructs the shared vector. The first
// LegacyThreshold shares define the polynomials; any further shares
// must agree with them.
func ShamirReconstruct(shares []LegacyShare) ([]field.Element, error) {
	if len(shares) < LegacyThreshold {
		return nil, fmt.Errorf("%w: got %d, need %d",
			ErrInsufficient, len(shares), LegacyThreshold)
	}
	n := len(shares[0].Y)
	for i, s := range shares {
		if len(s.Y) != n {
			return nil, fmt.Errorf("%w: legacy share %d has %d elements, expected %d",
				ErrLength, i, len(s.Y), n)
		}
	}
	base := shares[:LegacyThreshold]
	xs := make([]field.Element, len(base))
	for i, s := range base {
		xs[i] = s.X
	}
	lambda, err := LagrangeAtZero(xs)
	if err != nil {
		return nil, err
	}

	result := make([]field.Element, n)
	for j := 0; j < n; j++ {
		var v field.Element
		for i, s := range base {
			v = field.Add(v, field.Mul(lambda[i], s.Y[j]))
		}
		result[j] = v
	}

	// The line through the base shares is v + a*x where a is
	// (y1-y0)/(x1-x0).
	if len(shares) > LegacyThreshold {
		dx, err := field.Inv(field.Sub(base[1].X, base[0].X))
		if err != nil {
			return nil, err
		}
		for _, s := range shares[LegacyThreshold:] {
			for j := 0; j < n; j++ {
				a := field.Mul(field.Sub(base[1].Y[j], base[0].Y[j]), dx)
				if field.Add(result[j], field.Mul(a, s.X)) != s.Y[j] {
					return nil, fmt.Errorf("%w: point %d, element %d",
						ErrInconsistent, s.X, j)
				}
			}
		}
	}
	return result, nil
}

// Convert converts legacy shares into fresh replicated shares. It
// reconstructs the secret and re-shares it with new randomness; no
// share of the legacy layout is carried over.
func Convert(random io.Reader, legacy []LegacyShare) (Triple, error) {
	values, err := ShamirReconstruct(legacy)
	if err != nil {
		return Triple{}, err
	}
	return Split(random, values)
}
