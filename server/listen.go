package server

import (
	"errors"
	"net"
	"os"

	"dhcpproxy/transport"
)

func listen(network, address string) (net.Listener, error) {
	switch network {
	case transport.NetworkPipe:
		return listenPipe(address)
	case "unix":
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
		return net.Listen(network, address)
	default:
		return net.Listen(network, address)
	}
}

// removeStaleSocket deletes a socket file left behind by a proxy that did
// not shut down cleanly. A socket something still answers on is kept, so
// the following Listen fails with "address already in use".
func removeStaleSocket(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return nil
	}

	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return nil
	}
	return os.Remove(path)
}
