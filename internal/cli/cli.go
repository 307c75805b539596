//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package cli implements the setup shared by the command line tools.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/env"
	"github.com/markkurossi/irismpc/logging"
	"github.com/markkurossi/irismpc/metrics"
	"github.com/markkurossi/irismpc/store"
)

// Flags define the common command line flags.
type Flags struct {
	ConfigFile string
}

// Register registers the common flags to the command.
func (f *Flags) Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.ConfigFile, "config", "",
		"configuration file (defaults and IRISMPC_* environment variables if empty)")
}

// Load loads the configuration.
func (f *Flags) Load() (*config.Config, error) {
	if f.ConfigFile == "" {
		return config.Parse(nil)
	}
	return config.Load(f.ConfigFile)
}

// Context returns a context that is canceled on SIGINT and SIGTERM.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
}

// Logger creates the logger of the configuration.
func Logger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(cfg.Debug())
}

// Env creates the environment of the configuration.
func Env(cfg *config.Config) *env.Config {
	return &env.Config{
		Workers: cfg.Party.Workers,
	}
}

// OpenLegacy opens the legacy store.
func OpenLegacy(spec config.StoreSpec) (store.Legacy, error) {
	switch spec.Backend {
	case config.BackendMemory:
		return store.NewMemoryLegacy(), nil
	case config.BackendFile:
		return store.NewFileLegacy(spec.Path)
	default:
		return nil, fmt.Errorf("unknown legacy store backend '%s'", spec.Backend)
	}
}

// OpenReplicated opens the replicated store.
func OpenReplicated(spec config.StoreSpec) (store.Replicated, error) {
	switch spec.Backend {
	case config.BackendMemory:
		return store.NewMemoryReplicated(), nil
	case config.BackendFile:
		return store.NewFileReplicated(spec.Path)
	default:
		return nil, fmt.Errorf("unknown replicated store backend '%s'",
			spec.Backend)
	}
}

// ServeMetrics serves the metrics endpoint in the background if the
// configuration enables it.
func ServeMetrics(ctx context.Context, cfg *config.Config,
	log *logging.Logger) {

	if cfg.Metrics.Listen == "" {
		metrics.Disable()
		return
	}
	go func() {
		log.Info("serving metrics", "addr", cfg.Metrics.Listen)
		if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
			log.Error(err, "component", "metrics")
		}
	}()
}
