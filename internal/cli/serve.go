package cli

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"dhcpproxy/config"
	"dhcpproxy/metrics"
	"dhcpproxy/middleware"
	"dhcpproxy/registry"
	"dhcpproxy/server"
)

type serveOptions struct {
	network   string
	address   string
	advertise string
}

func serveCmd(ctx context.Context, g *globals) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the emulating DHCP proxy",
		Example: `  dhcpproxy serve --config /etc/dhcp-proxy.yaml
  dhcpproxy serve --network unix --address /tmp/dhcp-proxy.sock`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("network") {
				cfg.Proxy.Network = opts.network
			}
			if cmd.Flags().Changed("address") {
				cfg.Proxy.Address = opts.address
			}
			if cmd.Flags().Changed("advertise") {
				cfg.Server.AdvertiseAddress = opts.advertise
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.network, "network", "", "listen network: pipe, unix or tcp")
	cmd.Flags().StringVar(&opts.address, "address", "", "listen address")
	cmd.Flags().StringVar(&opts.advertise, "advertise", "", "address published in the registry")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	svr := server.NewServer(
		server.WithServiceName(cfg.Registry.ServiceName),
		server.WithRegistrationTTL(cfg.Registry.TTL),
	)

	servers := make(map[string]server.ServerVersion, len(cfg.Server.DhcpServers))
	for name, v := range cfg.Server.DhcpServers {
		servers[name] = server.ServerVersion{Major: v.Major, Minor: v.Minor}
	}
	if err := svr.Register(server.NewEmulator(cfg.Server.ProxyVersion, servers)); err != nil {
		return err
	}

	svr.Use(middleware.LoggingMiddleware())

	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry("proxy")
		m, err := metrics.New(reg, "server")
		if err != nil {
			return err
		}
		srv, err := metrics.NewPrometheus(cfg.Metrics.Host, cfg.Metrics.Port, nil, reg)
		if err != nil {
			return err
		}
		defer srv.Close()
		svr.Use(middleware.MetricsMiddleware(m))
	}

	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.Burst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(time.Duration(cfg.Server.HandlerTimeout)))
	}
	if cfg.Server.RetryAttempts > 0 {
		svr.Use(middleware.RetryMiddleware(cfg.Server.RetryAttempts, time.Duration(cfg.Server.RetryDelay)))
	}

	var reg registry.Registry
	if len(cfg.Registry.Endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
		if err != nil {
			return err
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve(cfg.Proxy.Network, cfg.Proxy.Address, cfg.Server.AdvertiseAddress, reg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down proxy")

	err := svr.Shutdown(time.Duration(cfg.Server.ShutdownTimeout))
	if serveErr := <-errCh; serveErr != nil {
		err = errors.Join(err, serveErr)
	}
	return err
}
