//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package shares

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"testing"

	"github.com/markkurossi/irismpc/field"
	"github.com/stretchr/testify/require"
)

func randomValues(r *mrand.Rand, n int) []field.Element {
	result := make([]field.Element, n)
	for i := range result {
		result[i] = field.Element(r.IntN(field.P))
	}
	return result
}

func TestRoles(t *testing.T) {
	for i := 0; i < NumParties; i++ {
		r := Role(i)
		require.True(t, r.Valid())
		require.Equal(t, r, r.Next().Prev())
		require.Equal(t, r.Prev(), r.Next().Next())
		require.Equal(t, [2]int{i, (i + 2) % 3}, r.Holds())
	}
	require.NotEqual(t, Role(0).String(), Role(2).String())

	_, err := ParseRole(3)
	require.ErrorIs(t, err, ErrRole)
	_, err = ParseRole(-1)
	require.ErrorIs(t, err, ErrRole)
}

func TestSplitReconstruct(t *testing.T) {
	r := mrand.New(mrand.NewPCG(1, 1))
	values := randomValues(r, 257)

	triple, err := Split(rand.Reader, values)
	require.NoError(t, err)
	require.Equal(t, len(values), triple.Len())

	result, err := triple.Reconstruct()
	require.NoError(t, err)
	require.Equal(t, values, result)

	for a := 0; a < NumParties; a++ {
		for b := 0; b < NumParties; b++ {
			if a == b {
				continue
			}
			ra := Role(a)
			rb := Role(b)
			result, err = Combine(triple.Pair(ra), ra, triple.Pair(rb), rb)
			require.NoError(t, err)
			require.Equal(t, values, result)
		}
	}
	_, err = Combine(triple.Pair(0), 0, triple.Pair(0), 0)
	require.ErrorIs(t, err, ErrRole)
}

func TestReplicatedLayout(t *testing.T) {
	triple := Triple{
		{1}, {2}, {3},
	}
	// Role i holds (s_i, s_{i-1}).
	require.Equal(t, Pair{Share0: []field.Element{1},
		Share1: []field.Element{3}}, triple.Pair(0))
	require.Equal(t, Pair{Share0: []field.Element{2},
		Share1: []field.Element{1}}, triple.Pair(1))
	require.Equal(t, Pair{Share0: []field.Element{3},
		Share1: []field.Element{2}}, triple.Pair(2))
}

func TestTripleValidate(t *testing.T) {
	triple := Triple{
		{1, 2}, {3}, {4, 5},
	}
	require.ErrorIs(t, triple.Validate(), ErrLength)
	_, err := triple.Reconstruct()
	require.ErrorIs(t, err, ErrLength)
}

func TestLagrangeAtZero(t *testing.T) {
	lambda, err := LagrangeAtZero([]field.Element{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []field.Element{3, field.FromInt(-3), 1}, lambda)

	lambda, err = LagrangeAtZero([]field.Element{1, 2})
	require.NoError(t, err)
	require.Equal(t, []field.Element{2, field.FromInt(-1)}, lambda)

	_, err = LagrangeAtZero([]field.Element{2, 2})
	require.Error(t, err)
}

func TestShamir(t *testing.T) {
	r := mrand.New(mrand.NewPCG(2, 3))
	values := randomValues(r, 100)

	legacy, err := ShamirSplit(rand.Reader, values)
	require.NoError(t, err)

	// Any two shares reconstruct.
	for _, pick := range [][]int{{0, 1}, {0, 2}, {1, 2}, {2, 0}, {0, 1, 2}} {
		var subset []LegacyShare
		for _, idx := range pick {
			subset = append(subset, legacy[idx])
		}
		result, err := ShamirReconstruct(subset)
		require.NoError(t, err, "pick %v", pick)
		require.Equal(t, values, result, "pick %v", pick)
	}

	_, err = ShamirReconstruct(legacy[:1])
	require.ErrorIs(t, err, ErrInsufficient)

	legacy[2].Y[17] = field.Add(legacy[2].Y[17], 1)
	_, err = ShamirReconstruct(legacy[:])
	require.ErrorIs(t, err, ErrInconsistent)
}

func TestConvert(t *testing.T) {
	r := mrand.New(mrand.NewPCG(4, 5))
	values := randomValues(r, 64)

	legacy, err := ShamirSplit(rand.Reader, values)
	require.NoError(t, err)

	triple, err := Convert(rand.Reader, legacy[:])
	require.NoError(t, err)

	result, err := triple.Reconstruct()
	require.NoError(t, err)
	require.Equal(t, values, result)
}
