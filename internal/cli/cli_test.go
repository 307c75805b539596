//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/markkurossi/irismpc/config"
	"github.com/markkurossi/irismpc/store"
)

func TestFlags(t *testing.T) {
	var flags Flags
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
	flags.Register(cmd)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("party: {id: 1}\n"), 0600))

	cmd.SetArgs([]string{"--config", path})
	require.NoError(t, cmd.Execute())
	require.Equal(t, path, flags.ConfigFile)

	cfg, err := flags.Load()
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Party.ID)

	flags.ConfigFile = ""
	cfg, err = flags.Load()
	require.NoError(t, err)
	require.Equal(t, config.Default().Reshare, cfg.Reshare)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	legacy, err := OpenLegacy(config.StoreSpec{
		Backend: config.BackendFile,
		Path:    filepath.Join(dir, "legacy"),
	})
	require.NoError(t, err)
	require.IsType(t, &store.FileLegacy{}, legacy)
	count, err := legacy.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.NoError(t, legacy.Close())

	replicated, err := OpenReplicated(config.StoreSpec{
		Backend: config.BackendMemory,
	})
	require.NoError(t, err)
	require.IsType(t, &store.MemoryReplicated{}, replicated)

	_, err = OpenLegacy(config.StoreSpec{Backend: "s3"})
	require.Error(t, err)
	_, err = OpenReplicated(config.StoreSpec{Backend: "s3"})
	require.Error(t, err)
}

func TestEnv(t *testing.T) {
	cfg := config.Default()
	cfg.Party.Workers = 3
	require.Equal(t, 3, Env(cfg).GetWorkers())
}
