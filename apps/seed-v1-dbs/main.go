//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/internal/cli"
	"github.com/markkurossi/irismpc/seed"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seed-v1-dbs: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var flags cli.Flags
	var start, count uint64

	cmd := &cobra.Command{
		Use:   "seed-v1-dbs",
		Short: "Populate the legacy store with synthetic identities",
		Long: `Generates deterministic random iris codes and masks and stores
their legacy Shamir shares for the identities start...start+count-1.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("count") {
				cfg.Seed.Count = count
			}
			n, err := generate(cfg, start)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d identities\n", n)
			return nil
		},
	}
	flags.Register(cmd)
	cmd.Flags().Uint64Var(&start, "start", 0, "first identity")
	cmd.Flags().Uint64Var(&count, "count", 0,
		"number of identities (overrides the configuration)")
	return cmd
}

func limiter(cfg *config.Config) *rate.Limiter {
	if cfg.Seed.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.Seed.RateLimit), 1)
}

func generate(cfg *config.Config, start uint64) (uint64, error) {
	ctx, cancel := cli.Context()
	defer cancel()

	log := cli.Logger(cfg).With("component", "seed")
	if cfg.Store.Legacy.Backend == config.BackendMemory {
		log.Warn("seeding a memory backend, the records are not persisted")
	}

	legacy, err := cli.OpenLegacy(cfg.Store.Legacy)
	if err != nil {
		return 0, err
	}
	defer legacy.Close()

	return seed.Generate(ctx, cli.Env(cfg), legacy, seed.Options{
		Start:   start,
		Count:   cfg.Seed.Count,
		Seed:    cfg.Seed.Seed,
		Limiter: limiter(cfg),
		Log:     log,
	})
}
