package client

import (
	"context"

	"dhcpproxy/codec"
	"dhcpproxy/message"
)

// The proxy's own operations always use the binary layout, whatever codec
// the client is configured with.
var proxyCodec = &codec.BinaryCodec{}

// GetProxyVersion returns the protocol version the proxy implements.
func (c *Client) GetProxyVersion(ctx context.Context) (int32, error) {
	var version int32
	err := c.call(ctx, proxyCodec, message.OpGetProxyVersion, nil, &version)
	return version, err
}

// Connect opens a management session from the proxy to a DHCP server.
func (c *Client) Connect(ctx context.Context, server string) error {
	return c.call(ctx, proxyCodec, message.OpConnect, server, nil)
}

// Disconnect closes a session opened by Connect.
func (c *Client) Disconnect(ctx context.Context, server string) error {
	return c.call(ctx, proxyCodec, message.OpDisconnect, server, nil)
}

// GetServerVersion returns the major and minor version of a connected DHCP
// server.
func (c *Client) GetServerVersion(ctx context.Context, server string) (major, minor int32, err error) {
	err = c.call(ctx, proxyCodec, message.OpGetServerVersion, server, []any{&major, &minor})
	return major, minor, err
}
