//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package distance reconstructs normalized iris distances from the
// parties' numerator and denominator shares.
package distance

import (
	"errors"
	"fmt"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/shares"
)

var (
	// ErrZeroDenominator is returned for comparisons whose
	// reconstructed denominator is zero.
	ErrZeroDenominator = errors.New("distance: zero denominator")

	// ErrShape is returned when the batch inputs have mismatched
	// lengths.
	ErrShape = errors.New("distance: invalid batch shape")
)

// Partial is one party's share of a comparison.
type Partial struct {
	Nom field.Element
	Den field.Element
}

// Reconstruct sums the numerator and denominator shares and returns
// the normalized distance (nom/den - 1) * -0.5. The sums are read as
// signed values: the numerator is a difference of bit counts and may
// be negative.
func Reconstruct(nom, den [shares.NumParties]field.Element) (float32, error) {
	n := field.Centered(field.Sum(nom[:]...))
	d := field.Centered(field.Sum(den[:]...))
	if d == 0 {
		return 0, ErrZeroDenominator
	}
	q := float32(float32(n) / float32(d))
	return float32((q - 1) * -0.5), nil
}

// FromPartials reconstructs the distance from the parties' partial
// triples.
func FromPartials(p [shares.NumParties]Partial) (float32, error) {
	var nom, den [shares.NumParties]field.Element
	for i, v := range p {
		nom[i] = v.Nom
		den[i] = v.Den
	}
	return Reconstruct(nom, den)
}

// Result holds the distances of a batch. Valid[i] is false for
// degenerate comparisons whose distance is undefined; their
// Distances[i] is 0.
type Result struct {
	Distances []float32
	Valid     []bool
}

// Invalid returns the number of degenerate comparisons.
func (r *Result) Invalid() int {
	var count int
	for _, v := range r.Valid {
		if !v {
			count++
		}
	}
	return count
}

// Batch reconstructs count distances from the parties' code
// (numerator) and mask (denominator) share arrays.
func Batch(codes, masks [shares.NumParties][]field.Element, count int) (
	*Result, error) {

	for i := 0; i < shares.NumParties; i++ {
		if len(codes[i]) < count || len(masks[i]) < count {
			return nil, fmt.Errorf("%w: party %d has %d/%d shares for %d elements",
				ErrShape, i, len(codes[i]), len(masks[i]), count)
		}
	}
	result := &Result{
		Distances: make([]float32, count),
		Valid:     make([]bool, count),
	}
	for i := 0; i < count; i++ {
		d, err := Reconstruct(
			[shares.NumParties]field.Element{codes[0][i], codes[1][i], codes[2][i]},
			[shares.NumParties]field.Element{masks[0][i], masks[1][i], masks[2][i]})
		if err != nil {
			continue
		}
		result.Distances[i] = d
		result.Valid[i] = true
	}
	return result, nil
}
