// Package registry records where DHCP proxy instances listen so clients can
// find one.
package registry

import "github.com/google/uuid"

// ProxyInstance describes one running proxy endpoint.
type ProxyInstance struct {
	ID      string `json:"id"`
	Network string `json:"network"` // "pipe", "unix" or "tcp"
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

// NewProxyInstance returns an instance with a fresh random ID.
func NewProxyInstance(network, addr string, weight int, version string) ProxyInstance {
	return ProxyInstance{
		ID:      uuid.NewString(),
		Network: network,
		Addr:    addr,
		Weight:  weight,
		Version: version,
	}
}

type Registry interface {
	Register(serviceName string, instance ProxyInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ProxyInstance, error)
	Watch(serviceName string) <-chan []ProxyInstance
}
