package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dhcpproxy/config"
)

func TestSetupLogger(t *testing.T) {
	defer func(l zerolog.Logger, lvl zerolog.Level) {
		log.Logger = l
		zerolog.SetGlobalLevel(lvl)
	}(log.Logger, zerolog.GlobalLevel())

	path := filepath.Join(t.TempDir(), "proxy.log")

	cleanup, err := setupLogger("warn", path, false)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")
	assert.NotContains(t, string(data), "hidden")

	_, err = setupLogger("loud", "", false)
	assert.Error(t, err)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Proxy.Network = "unix"
	cfg.Proxy.Address = filepath.Join(t.TempDir(), "proxy.sock")
	cfg.Server.ProxyVersion = 9
	cfg.Server.DhcpServers = map[string]config.DhcpServer{
		"dhcp01": {Major: 10, Minor: 2},
	}
	return cfg
}

func TestServeAndQueryVersion(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runServe(ctx, cfg) }()

	// The client dials with backoff, so it waits for the socket to appear.
	var out bytes.Buffer
	cmd := versionCmd(context.Background(), &globals{cfg: cfg})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", "dhcp01"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "proxy 9\ndhcp01 10.2\n", out.String())

	cancel()
	require.NoError(t, <-errc)
}

func TestVersionUnknownServer(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runServe(ctx, cfg) }()

	cmd := versionCmd(context.Background(), &globals{cfg: cfg})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--server", "nope"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1722")

	cancel()
	require.NoError(t, <-errc)
}

func TestServeInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.PoolSize = 0

	cmd := serveCmd(context.Background(), &globals{cfg: cfg})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestRootUnknownConfigFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	cmd := RootCmd(context.Background())
	cmd.SetArgs([]string{"version", "--config", path})
	assert.ErrorIs(t, cmd.Execute(), config.ErrUnknownFormat)
}
