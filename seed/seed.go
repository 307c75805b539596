//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package seed populates legacy stores with synthetic iris codes.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/time/rate"

	"github.com/markkurossi/irismpc/env"
	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

const progressInterval = 1000

// Options define the generated identities.
type Options struct {
	// Start is the first identity.
	Start uint64
	// Count is the number of identities.
	Count uint64
	// Length is the code length in bits. Zero means iris.CodeLength.
	Length int
	// Seed selects the generated codes.
	Seed uint64
	// Limiter limits the store write rate. Nil means no limit.
	Limiter *rate.Limiter

	Log *logging.Logger
}

func (opts Options) length() int {
	if opts.Length > 0 {
		return opts.Length
	}
	return iris.CodeLength
}

// Code returns the synthetic code of the identity. The code is a
// deterministic function of the seed and the identity.
func Code(seed, id uint64, length int) *iris.Code {
	return iris.Random(rand.New(rand.NewPCG(seed, id)), length)
}

// Record creates the legacy record of the code. The shares are
// created with the entropy source of the configuration.
func Record(config *env.Config, id uint64, code *iris.Code) (
	store.LegacyRecord, error) {

	c, m := code.Encode()
	random := config.GetRandom()

	codeShares, err := shares.ShamirSplit(random, c)
	if err != nil {
		return store.LegacyRecord{}, err
	}
	maskShares, err := shares.ShamirSplit(random, m)
	if err != nil {
		return store.LegacyRecord{}, err
	}
	return store.LegacyRecord{
		ID:   id,
		Code: codeShares[:],
		Mask: maskShares[:],
	}, nil
}

// Generate writes the identities of the options into the store. It
// returns the number of records written.
func Generate(ctx context.Context, config *env.Config, w store.LegacyWriter,
	opts Options) (uint64, error) {

	log := logging.OrDiscard(opts.Log)
	length := opts.length()

	var count uint64
	for id := opts.Start; id < opts.Start+opts.Count; id++ {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return count, err
			}
		} else if err := ctx.Err(); err != nil {
			return count, err
		}
		record, err := Record(config, id, Code(opts.Seed, id, length))
		if err != nil {
			return count, fmt.Errorf("identity %d: %w", id, err)
		}
		if err := w.Put(ctx, record); err != nil {
			return count, fmt.Errorf("identity %d: %w", id, err)
		}
		count++
		if count%progressInterval == 0 {
			log.Info("seeding", "records", count, "total", opts.Count)
		}
	}
	log.Info("seeded", "records", count, "start", opts.Start)
	return count, nil
}
