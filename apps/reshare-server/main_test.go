//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/markkurossi/irismpc/config"
)

func TestConversionSeed(t *testing.T) {
	cfg := config.Default()
	cfg.Reshare.Seed = "0102030405060708090a0b0c0d0e0f10" +
		"1112131415161718191a1b1c1d1e1f20"

	seed, random, err := conversionSeed(cfg)
	require.NoError(t, err)
	require.False(t, random)
	require.Equal(t, byte(0x01), seed[0])
	require.Equal(t, byte(0x20), seed[31])

	cfg.Reshare.Seed = ""
	a, random, err := conversionSeed(cfg)
	require.NoError(t, err)
	require.True(t, random)
	b, _, err := conversionSeed(cfg)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestRequiresTLS(t *testing.T) {
	err := serve(config.Default())
	require.ErrorContains(t, err, "TLS must be enabled")
}
