//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package field implements arithmetic in the prime field GF(P) where
// P is the largest prime below 2^16. All secret shares, kernel
// outputs, and random masks of the system live in this field.
package field

import (
	"errors"
	"fmt"
	"math"
)

// P is the field modulus.
const P = 65519

const (
	// LimbShift is the shift applied to the row and column sums when
	// correcting signed byte-limb accumulators. The limbs are stored
	// offset by -128 so the shift is log2(128).
	LimbShift = 7

	// LimbBias is the per-column offset accumulated by the signed
	// limb products: 128 * 128.
	LimbBias = 1 << (2 * LimbShift)

	// MaxWidth is the largest vector width whose signed limb dot
	// product fits in an int32 accumulator.
	MaxWidth = math.MaxInt32 / LimbBias
)

var (
	// ErrWidthOverflow is returned when a vector width would
	// overflow the kernel accumulators.
	ErrWidthOverflow = errors.New("field: vector width overflows accumulator")
)

// Element is a field element in [0, P).
type Element uint16

// Reduce reduces the signed integer v into the field.
func Reduce(v int64) Element {
	r := v % P
	if r < 0 {
		r += P
	}
	return Element(r)
}

// Add returns a+b mod P.
func Add(a, b Element) Element {
	s := uint32(a) + uint32(b)
	if s >= P {
		s -= P
	}
	return Element(s)
}

// Sub returns a-b mod P.
func Sub(a, b Element) Element {
	s := uint32(a) + P - uint32(b)
	if s >= P {
		s -= P
	}
	return Element(s)
}

// Neg returns -a mod P.
func Neg(a Element) Element {
	if a == 0 {
		return 0
	}
	return P - a
}

// Mul returns a*b mod P.
func Mul(a, b Element) Element {
	return Element(uint32(a) * uint32(b) % P)
}

// Pow returns a^e mod P.
func Pow(a Element, e uint32) Element {
	result := Element(1)
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = Mul(result, base)
		}
		base = Mul(base, base)
		e >>= 1
	}
	return result
}

// Inv returns the multiplicative inverse of a. The inverse of zero is
// undefined and Inv returns an error for it.
func Inv(a Element) (Element, error) {
	if a == 0 {
		return 0, errors.New("field: inverse of zero")
	}
	return Pow(a, P-2), nil
}

// Sum returns the sum of the values mod P.
func Sum(values ...Element) Element {
	var s uint64
	for _, v := range values {
		s += uint64(v)
	}
	return Element(s % P)
}

// Centered returns the signed representative of a in (-P/2, P/2].
func Centered(a Element) int32 {
	if a > P/2 {
		return int32(a) - P
	}
	return int32(a)
}

// FromInt maps the signed integer v into the field.
func FromInt(v int) Element {
	return Reduce(int64(v))
}

// CheckWidth verifies that vectors of the argument width can be
// processed by the limb kernel.
func CheckWidth(width int) error {
	if width <= 0 || width > MaxWidth {
		return fmt.Errorf("%w: width %d not in [1, %d]",
			ErrWidthOverflow, width, MaxWidth)
	}
	return nil
}

// Correct removes the signed-limb offset from the raw accumulator
// c. The values a and b are the unsigned limb sums of the row and the
// column and width is the length of the dot product.
func Correct(c int32, a, b uint32, width int) int64 {
	return int64(c) + (int64(a)+int64(b))<<LimbShift -
		int64(width)*LimbBias
}

// Combine combines the four corrected limb products into one field
// element using base-256 limb weights and scales it with lCoeff.
func Combine(c00, c01, c10, c11 int64, lCoeff Element) Element {
	v := c00 + (c01+c10)<<8 + c11<<16
	return Mul(Reduce(v), lCoeff)
}
