//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package distance

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"testing"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/shares"
	"github.com/stretchr/testify/require"
)

type triple = [shares.NumParties]field.Element

func split(t *testing.T, v field.Element) triple {
	s, err := shares.Split(rand.Reader, []field.Element{v})
	require.NoError(t, err)
	return triple{s[0][0], s[1][0], s[2][0]}
}

func TestReconstructMaxValues(t *testing.T) {
	nom := triple{field.P - 1, 0, 0}
	den := triple{0, field.P - 1, 0}
	d, err := Reconstruct(nom, den)
	require.NoError(t, err)
	require.InDelta(t, 0.0, d, 0)

	d, err = Reconstruct(split(t, field.P-1), split(t, field.P-1))
	require.NoError(t, err)
	require.InDelta(t, 0.0, d, 0)
}

func TestReconstructZeroDenominator(t *testing.T) {
	_, err := Reconstruct(split(t, 10), split(t, 0))
	require.ErrorIs(t, err, ErrZeroDenominator)

	_, err = FromPartials([shares.NumParties]Partial{
		{Nom: 1, Den: 5}, {Nom: 2, Den: field.P - 5}, {Nom: 3, Den: 0},
	})
	require.ErrorIs(t, err, ErrZeroDenominator)
}

func TestReconstructSharesSum(t *testing.T) {
	r := mrand.New(mrand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		v := field.Element(r.IntN(field.P))
		s := split(t, v)
		require.Equal(t, v, field.Sum(s[:]...))
	}
}

func TestReconstructValues(t *testing.T) {
	tests := []struct {
		nom int
		den int
		d   float32
	}{
		{100, 100, 0},
		{-100, 100, 1},
		{0, 100, 0.5},
		{50, 100, 0.25},
		{-3, 4, 0.875},
	}
	for _, test := range tests {
		d, err := Reconstruct(split(t, field.FromInt(test.nom)),
			split(t, field.FromInt(test.den)))
		require.NoError(t, err)
		require.InDelta(t, test.d, d, 1e-7, "%d/%d", test.nom, test.den)
	}
}

func TestBatchIris(t *testing.T) {
	r := mrand.New(mrand.NewPCG(3, 4))

	const count = 16
	var codes, masks [shares.NumParties][]field.Element
	var expected []float64
	for i := 0; i < count; i++ {
		a := iris.Random(r, iris.CodeLength)
		b := iris.Random(r, iris.CodeLength)
		if i == 5 {
			// No commonly valid bits.
			b = iris.NewCode(iris.CodeLength)
		}
		d, _ := iris.Distance(a, b)
		expected = append(expected, d)

		ac, am := a.Encode()
		bc, bm := b.Encode()
		var nom, den field.Element
		for k := range ac {
			nom = field.Add(nom, field.Mul(ac[k], bc[k]))
			den = field.Add(den, field.Mul(am[k], bm[k]))
		}
		ns := split(t, nom)
		ds := split(t, den)
		for p := 0; p < shares.NumParties; p++ {
			codes[p] = append(codes[p], ns[p])
			masks[p] = append(masks[p], ds[p])
		}
	}

	result, err := Batch(codes, masks, count)
	require.NoError(t, err)
	require.Equal(t, 1, result.Invalid())
	for i := 0; i < count; i++ {
		if i == 5 {
			require.False(t, result.Valid[i])
			require.Equal(t, float32(0), result.Distances[i])
			continue
		}
		require.True(t, result.Valid[i])
		require.InDelta(t, expected[i], float64(result.Distances[i]), 1e-6)
	}

	_, err = Batch(codes, masks, count+1)
	require.ErrorIs(t, err, ErrShape)
}
