//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package engine

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/markkurossi/irismpc/field"
)

// NumPlanes defines the number of limb product planes in an
// accumulator.
const NumPlanes = 4

// Matrix is a row-major matrix of field elements.
type Matrix struct {
	Rows  int
	Width int
	Data  []field.Element
}

// NewMatrix creates a matrix from the argument rows. All rows must
// have the same length.
func NewMatrix(rows ...[]field.Element) (*Matrix, error) {
	m := &Matrix{
		Rows: len(rows),
	}
	if len(rows) > 0 {
		m.Width = len(rows[0])
	}
	m.Data = make([]field.Element, 0, m.Rows*m.Width)
	for i, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("engine: row %d has %d elements, expected %d",
				i, len(row), m.Width)
		}
		m.Data = append(m.Data, row...)
	}
	return m, nil
}

// Row returns the row i.
func (m *Matrix) Row(i int) []field.Element {
	return m.Data[i*m.Width : (i+1)*m.Width]
}

// Limbs holds the preprocessed signed byte limbs of a matrix. The
// limbs are the low and high bytes of the elements, stored offset by
// -128 so they fit the signed multiply-add arithmetic.
type Limbs struct {
	Rows  int
	Width int
	Lo    []int8
	Hi    []int8
}

// Preprocess splits the matrix elements into signed byte limbs.
func Preprocess(m *Matrix) *Limbs {
	l := &Limbs{
		Rows:  m.Rows,
		Width: m.Width,
		Lo:    make([]int8, len(m.Data)),
		Hi:    make([]int8, len(m.Data)),
	}
	for i, v := range m.Data {
		l.Lo[i] = int8(int(v&0xff) - 128)
		l.Hi[i] = int8(int(v>>8) - 128)
	}
	return l
}

// Sums returns the per-row sums of the unsigned limbs.
func (l *Limbs) Sums() (lo, hi []uint32) {
	lo = make([]uint32, l.Rows)
	hi = make([]uint32, l.Rows)
	for r := 0; r < l.Rows; r++ {
		for k := r * l.Width; k < (r+1)*l.Width; k++ {
			lo[r] += uint32(int(l.Lo[k]) + 128)
			hi[r] += uint32(int(l.Hi[k]) + 128)
		}
	}
	return
}

// Sums holds the limb sums of the row and column operands of a
// kernel invocation.
type Sums struct {
	A0 []uint32
	A1 []uint32
	B0 []uint32
	B1 []uint32
}

// NewSums computes the limb sums of the row operand a and the column
// operand b.
func NewSums(a, b *Limbs) Sums {
	var s Sums
	s.A0, s.A1 = a.Sums()
	s.B0, s.B1 = b.Sums()
	return s
}

// Dot computes the four signed limb product planes of the row
// operand a and the column operand b. The result has NumPlanes
// planes of a.Rows*b.Rows elements; element idx of a plane is the
// product of row idx%a.Rows of a and row idx/a.Rows of b. The planes
// are lo*lo, lo*hi, hi*lo, and hi*hi of a and b respectively.
func Dot(a, b *Limbs, workers int) ([]int32, error) {
	if a.Width != b.Width {
		return nil, fmt.Errorf("engine: operand widths %d and %d differ",
			a.Width, b.Width)
	}
	if err := field.CheckWidth(a.Width); err != nil {
		return nil, err
	}
	n := a.Rows * b.Rows
	acc := make([]int32, NumPlanes*n)
	width := a.Width

	err := parallel(workers, b.Rows, func(start, end int) error {
		for col := start; col < end; col++ {
			bLo := b.Lo[col*width : (col+1)*width]
			bHi := b.Hi[col*width : (col+1)*width]
			for row := 0; row < a.Rows; row++ {
				aLo := a.Lo[row*width : (row+1)*width]
				aHi := a.Hi[row*width : (row+1)*width]

				var c00, c01, c10, c11 int32
				for k := 0; k < width; k++ {
					al := int32(aLo[k])
					ah := int32(aHi[k])
					bl := int32(bLo[k])
					bh := int32(bHi[k])
					c00 += al * bl
					c01 += al * bh
					c10 += ah * bl
					c11 += ah * bh
				}
				idx := col*a.Rows + row
				acc[idx] = c00
				acc[n+idx] = c01
				acc[2*n+idx] = c10
				acc[3*n+idx] = c11
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// parallel splits the range [0, n) into chunks and runs fn for them
// in at most workers goroutines.
func parallel(workers, n int, fn func(start, end int) error) error {
	if workers <= 0 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers
	if chunk == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			return fn(start, end)
		})
	}
	return g.Wait()
}
