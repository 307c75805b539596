//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/internal/cli"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/reshare"
	"github.com/markkurossi/irismpc/rng"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reshare-server: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var flags cli.Flags

	cmd := &cobra.Command{
		Use:   "reshare-server",
		Short: "Serve legacy shares as replicated shares",
		Long: `Reads the legacy Shamir shares of the identities and streams them,
converted to replicated shares, to the authenticated reshare clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	flags.Register(cmd)
	return cmd
}

func conversionSeed(cfg *config.Config) (seed rng.Seed, random bool,
	err error) {

	data, err := cfg.Reshare.SeedBytes()
	if err != nil {
		return seed, false, err
	}
	if data == nil {
		seed, err = rng.NewSeed(rand.Reader)
		return seed, true, err
	}
	copy(seed[:], data)
	return seed, false, nil
}

func serve(cfg *config.Config) error {
	ctx, cancel := cli.Context()
	defer cancel()

	log := cli.Logger(cfg).With("component", "reshare-server")
	cli.ServeMetrics(ctx, cfg, log)

	tlsConfig, err := cfg.TLS.ServerConfig()
	if err != nil {
		return err
	}
	if tlsConfig == nil {
		return errors.New("TLS must be enabled for the reshare server")
	}
	eye, err := cfg.Party.GetEye()
	if err != nil {
		return err
	}
	seed, random, err := conversionSeed(cfg)
	if err != nil {
		return err
	}
	if random {
		log.Warn("no conversion seed configured, reruns produce different shares")
	}

	legacy, err := cli.OpenLegacy(cfg.Store.Legacy)
	if err != nil {
		return err
	}
	defer legacy.Close()

	count, err := legacy.Count(ctx)
	if err != nil {
		return err
	}

	listener, err := p2p.Listen(cfg.Reshare.Listen, tlsConfig)
	if err != nil {
		return err
	}
	log.Info("listening", "addr", listener.Addr(), "eye", eye,
		"identities", count)

	server := &reshare.Server{
		Legacy:  legacy,
		Eye:     eye,
		Seed:    seed,
		Timeout: cfg.Reshare.Timeout,
		Log:     log,
	}
	return server.Serve(ctx, listener)
}
