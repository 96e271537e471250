package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dhcpproxy/client"
	"dhcpproxy/codec"
	"dhcpproxy/config"
	"dhcpproxy/loadbalance"
	"dhcpproxy/registry"
)

func versionCmd(ctx context.Context, g *globals) *cobra.Command {
	var dhcpServer string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Query the proxy version, and optionally a DHCP server's",
		Example: `  dhcpproxy version
  dhcpproxy version --server dhcp01`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeClient, err := newClient(g.cfg)
			if err != nil {
				return err
			}
			defer closeClient()

			v, err := c.GetProxyVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "proxy %d\n", v)

			if dhcpServer == "" {
				return nil
			}

			if err := c.Connect(ctx, dhcpServer); err != nil {
				return err
			}
			major, minor, err := c.GetServerVersion(ctx, dhcpServer)
			if dErr := c.Disconnect(ctx, dhcpServer); err == nil {
				err = dErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d.%d\n", dhcpServer, major, minor)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dhcpServer, "server", "s", "", "DHCP server to query through the proxy")

	return cmd
}

// newClient discovers proxies through etcd when endpoints are configured,
// otherwise it dials the configured proxy directly. The returned func
// releases the client and its registry.
func newClient(cfg config.Config) (*client.Client, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	cdc, err := codec.ParseCodecType(cfg.Client.Codec)
	if err != nil {
		return nil, nil, err
	}

	opts := []client.Option{
		client.WithCodec(cdc),
		client.WithPoolSize(cfg.Client.PoolSize),
		client.WithTransportOptions(cfg.TransportOptions()...),
	}

	if len(cfg.Registry.Endpoints) == 0 {
		c := client.Dial(cfg.Proxy.Network, cfg.Proxy.Address, opts...)
		return c, func() { _ = c.Close() }, nil
	}

	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
	if err != nil {
		return nil, nil, err
	}
	bal, err := loadbalance.New(cfg.Client.Balancer, cfg.Client.HashKey)
	if err != nil {
		_ = reg.Close()
		return nil, nil, err
	}

	c := client.NewClient(reg, bal, append(opts, client.WithServiceName(cfg.Registry.ServiceName))...)
	return c, func() {
		_ = c.Close()
		_ = reg.Close()
	}, nil
}
