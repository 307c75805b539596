//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/markkurossi/irismpc/checker"
	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/internal/cli"
	"github.com/markkurossi/irismpc/shares"
	"github.com/markkurossi/irismpc/store"
)

func main() {
	var exitCode int

	cmd := newCommand(os.Stdout, &exitCode)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "checker: %v\n", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}

func newCommand(out io.Writer, exitCode *int) *cobra.Command {
	var flags cli.Flags
	var verbose bool
	var sample int

	cmd := &cobra.Command{
		Use:   "checker",
		Short: "Verify replicated shares against the legacy shares",
		Long: `Samples identities present in the legacy store and in the role
stores, and verifies that the replicated shares reconstruct the same
iris codes and masks as the legacy shares. The exit code is 1 if any
sampled identity does not match.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("sample") {
				cfg.Checker.Sample = sample
			}
			report, err := check(cfg)
			if err != nil {
				return err
			}
			report.Print(out, verbose)
			*exitCode = report.ExitCode()
			return nil
		},
	}
	flags.Register(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"print matching identities too")
	cmd.Flags().IntVar(&sample, "sample", 0,
		"number of identities to sample, 0 for all")
	return cmd
}

func openStores(cfg *config.Config) (
	map[shares.Role]store.ReplicatedStore, func(), error) {

	var closers []store.Replicated
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	var roles []int
	for role := range cfg.Checker.Stores {
		roles = append(roles, role)
	}
	slices.Sort(roles)

	result := make(map[shares.Role]store.ReplicatedStore)
	for _, role := range roles {
		s, err := cli.OpenReplicated(config.StoreSpec{
			Backend: config.BackendFile,
			Path:    cfg.Checker.Stores[role],
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("role %d store: %w", role, err)
		}
		closers = append(closers, s)
		result[shares.Role(role)] = s
	}
	return result, closeAll, nil
}

func check(cfg *config.Config) (*checker.Report, error) {
	ctx, cancel := cli.Context()
	defer cancel()

	log := cli.Logger(cfg).With("component", "checker")
	cli.ServeMetrics(ctx, cfg, log)

	legacy, err := cli.OpenLegacy(cfg.Store.Legacy)
	if err != nil {
		return nil, err
	}
	defer legacy.Close()

	replicated, closeStores, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	defer closeStores()

	c, err := checker.New(legacy, replicated, cli.Env(cfg), checker.Options{
		Sample:    cfg.Checker.Sample,
		Seed:      cfg.Checker.Seed,
		Tolerance: cfg.Checker.Tolerance,
		Reference: cfg.Checker.Reference,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}
	return c.Run(ctx)
}
