//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package engine implements the secure multiplication kernel and the
// per-party share database of the matching engine.
package engine

import (
	"errors"
	"fmt"

	"github.com/markkurossi/irismpc/field"
)

// ErrShape is returned when kernel inputs do not match the kernel
// parameters.
var ErrShape = errors.New("engine: invalid kernel input shape")

// KernelParams define the shape of a kernel invocation.
type KernelParams struct {
	// NumRows is the number of row operands.
	NumRows int
	// NumCols is the number of column operands.
	NumCols int
	// Width is the length of the dot products.
	Width int
	// Workers bounds the number of goroutines.
	Workers int
}

// NumElements returns the number of output elements.
func (p KernelParams) NumElements() int {
	return p.NumRows * p.NumCols
}

func (p KernelParams) check(acc []int32, sums Sums, m0, m1 []field.Element) error {
	if p.NumRows <= 0 || p.NumCols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrShape, p.NumRows, p.NumCols)
	}
	if err := field.CheckWidth(p.Width); err != nil {
		return err
	}
	n := p.NumElements()
	if len(acc) != NumPlanes*n {
		return fmt.Errorf("%w: accumulator length %d, expected %d",
			ErrShape, len(acc), NumPlanes*n)
	}
	if len(sums.A0) < p.NumRows || len(sums.A1) < p.NumRows {
		return fmt.Errorf("%w: %d row sums for %d rows",
			ErrShape, min(len(sums.A0), len(sums.A1)), p.NumRows)
	}
	if len(sums.B0) < p.NumCols || len(sums.B1) < p.NumCols {
		return fmt.Errorf("%w: %d column sums for %d columns",
			ErrShape, min(len(sums.B0), len(sums.B1)), p.NumCols)
	}
	if len(m0) < n || len(m1) < n {
		return fmt.Errorf("%w: %d masks for %d elements",
			ErrShape, min(len(m0), len(m1)), n)
	}
	return nil
}

// Kernel converts the limb product planes of one party into a fresh
// additive share. For each element it removes the limb offsets from
// the four planes, combines them into one field element, scales the
// result with lCoeff, and blinds it with the correlated masks:
// (r + P + m0 - m1) mod P.
func Kernel(p KernelParams, acc []int32, sums Sums, lCoeff field.Element,
	masks0, masks1 []field.Element) ([]field.Element, error) {

	if err := p.check(acc, sums, masks0, masks1); err != nil {
		return nil, err
	}
	n := p.NumElements()
	result := make([]field.Element, n)

	err := parallel(p.Workers, n, func(start, end int) error {
		for idx := start; idx < end; idx++ {
			row := idx % p.NumRows
			col := idx / p.NumRows

			c00 := field.Correct(acc[idx], sums.A0[row], sums.B0[col], p.Width)
			c01 := field.Correct(acc[idx+n], sums.A0[row], sums.B1[col],
				p.Width)
			c10 := field.Correct(acc[idx+2*n], sums.A1[row], sums.B0[col],
				p.Width)
			c11 := field.Correct(acc[idx+3*n], sums.A1[row], sums.B1[col],
				p.Width)

			r := field.Combine(c00, c01, c10, c11, lCoeff)
			result[idx] = field.Element(
				(uint32(r) + field.P + uint32(masks0[idx]) -
					uint32(masks1[idx])) % field.P)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
