package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Dialer opens a connection to the proxy.
type Dialer func(ctx context.Context) (net.Conn, error)

// NetworkPipe names the platform's local pipe transport: a named pipe on
// Windows, a unix domain socket elsewhere.
const NetworkPipe = "pipe"

// PipeDialer returns a Dialer for network and address. Supported networks
// are "pipe", "unix" and "tcp".
func PipeDialer(network, address string) (Dialer, error) {
	switch network {
	case NetworkPipe:
		return func(ctx context.Context) (net.Conn, error) {
			return dialPipe(ctx, address)
		}, nil
	case "unix", "tcp", "tcp4", "tcp6":
		var d net.Dialer
		return func(ctx context.Context) (net.Conn, error) {
			return d.DialContext(ctx, network, address)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}

// dialWithBackoff calls dial until it succeeds or ctx expires.
func dialWithBackoff(ctx context.Context, dial Dialer) (net.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	return backoff.RetryWithData(func() (net.Conn, error) {
		conn, err := dial(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}, backoff.WithContext(b, ctx))
}
