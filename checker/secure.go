//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package checker

import (
	"fmt"
	"math"

	"github.com/markkurossi/irismpc/distance"
	"github.com/markkurossi/irismpc/engine"
	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/rng"
	"github.com/markkurossi/irismpc/shares"
)

type pendingDistance struct {
	idx     int
	records roleRecords
}

// secureDistances computes the replicated distances with the share
// multiplication engine, running all three roles locally. The legacy
// distances are computed from the plaintext so the two values come
// from independent computations.
func (c *Checker) secureDistances(report *Report, ref *reference,
	pending []pendingDistance) {

	width := len(ref.legacy.Code)

	var batch []pendingDistance
	for _, p := range pending {
		if p.records[c.roles[0]].Code.Len() != width {
			r := &report.Results[p.idx]
			r.Status = Failed
			r.Details = fmt.Sprintf("code length %d, reference %d",
				p.records[c.roles[0]].Code.Len(), width)
			continue
		}
		batch = append(batch, p)
	}
	if len(batch) == 0 {
		return
	}

	result, err := c.multiply(ref, batch, width)
	if err != nil {
		for _, p := range batch {
			r := &report.Results[p.idx]
			r.Status = Failed
			r.Details = fmt.Sprintf("secure distance: %v", err)
		}
		return
	}
	for i, p := range batch {
		r := &report.Results[p.idx]
		if result.Valid[i] {
			r.Replicated = float64(result.Distances[i])
		} else {
			r.Replicated = math.NaN()
		}
	}
}

func (c *Checker) multiply(ref *reference, batch []pendingDistance,
	width int) (*distance.Result, error) {

	var seeds [shares.NumParties]rng.Seed
	for i := range seeds {
		var err error
		seeds[i], err = rng.NewSeed(c.config.GetRandom())
		if err != nil {
			return nil, err
		}
	}

	var codes, masks [shares.NumParties][]field.Element
	for i := 0; i < shares.NumParties; i++ {
		role := shares.Role(i)

		var codeEntries, maskEntries []shares.Pair
		for _, p := range batch {
			codeEntries = append(codeEntries, p.records[role].Code)
			maskEntries = append(maskEntries, p.records[role].Mask)
		}
		query := ref.roles[role]

		var err error
		codes[i], err = c.query(role, seeds, 0, width, codeEntries, query.Code)
		if err != nil {
			return nil, err
		}
		masks[i], err = c.query(role, seeds, 1, width, maskEntries, query.Mask)
		if err != nil {
			return nil, err
		}
	}
	return distance.Batch(codes, masks, len(batch))
}

func (c *Checker) query(role shares.Role, seeds [shares.NumParties]rng.Seed,
	stream uint64, width int, entries []shares.Pair, query shares.Pair) (
	[]field.Element, error) {

	corr := rng.NewCorrRNG(seeds[role], seeds[role.Prev()], stream)
	db, err := engine.NewShareDB(role, width, corr, c.config, c.log)
	if err != nil {
		return nil, err
	}
	if err := db.Load(entries); err != nil {
		return nil, err
	}
	return db.Query([]shares.Pair{query})
}
