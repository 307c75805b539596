//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/internal/cli"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/reshare"
	"github.com/markkurossi/irismpc/shares"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reshare-client: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var flags cli.Flags
	var shards int

	cmd := &cobra.Command{
		Use:   "reshare-client",
		Short: "Fetch replicated shares from the reshare server",
		Long: `Connects to the reshare server and stores the replicated shares of
the party's role for the configured identity range. The range is
split into shards that are fetched in parallel sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("shards") {
				cfg.Reshare.Shards = shards
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return run(cfg)
		},
	}
	flags.Register(cmd)
	cmd.Flags().IntVar(&shards, "shards", 0,
		"number of parallel sessions (overrides the configuration)")
	return cmd
}

func run(cfg *config.Config) error {
	ctx, cancel := cli.Context()
	defer cancel()

	role := shares.Role(cfg.Party.ID)
	log := cli.Logger(cfg).With("component", "reshare-client", "role", role,
		"eye", cfg.Party.Eye)
	cli.ServeMetrics(ctx, cfg, log)

	tlsConfig, err := cfg.TLS.ClientConfig()
	if err != nil {
		return err
	}
	if tlsConfig == nil {
		return errors.New("TLS must be enabled for the reshare client")
	}

	eye, err := cfg.Party.GetEye()
	if err != nil {
		return err
	}
	replicated, err := cli.OpenReplicated(cfg.Store.Replicated)
	if err != nil {
		return err
	}
	defer replicated.Close()

	client := &reshare.Client{
		Store:     replicated,
		Role:      role,
		Eye:       eye,
		BatchSize: cfg.Reshare.BatchSize,
		Timeout:   cfg.Reshare.Timeout,
		Log:       log,
	}
	dial := func(ctx context.Context) (*p2p.Conn, error) {
		return p2p.Dial(ctx, cfg.Reshare.Server, tlsConfig)
	}
	ranges := reshare.Split(cfg.Reshare.Start, cfg.Reshare.End,
		cfg.Reshare.Shards)

	log.Info("starting sessions", "server", cfg.Reshare.Server,
		"sessions", len(ranges))

	return report(log, client.RunSessions(ctx, dial, ranges))
}

func report(log *logging.Logger, results []reshare.Result) error {
	var failed int
	for _, result := range results {
		if result.Err != nil {
			failed++
			log.Error(result.Err, "range", result.Range)
			continue
		}
		log.Info("session complete", "range", result.Range,
			"session", result.Summary.Session,
			"batches", result.Summary.Batches,
			"records", result.Summary.Records)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(results))
	}
	return nil
}
