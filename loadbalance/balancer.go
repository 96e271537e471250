// Package loadbalance picks which proxy instance serves a call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity proxies
//   - WeightedRandom:  proxies on hosts of different capacity
//   - ConsistentHash:  keep all management sessions for one DHCP server on
//     the same proxy
package loadbalance

import (
	"errors"
	"fmt"

	"dhcpproxy/registry"
)

// ErrNoInstances is returned by Pick when the instance list is empty.
var ErrNoInstances = errors.New("no proxy instances available")

// Balancer selects a target instance. The client calls Pick before each
// call, so implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ProxyInstance) (*registry.ProxyInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer called name. key is only used by the
// consistent-hash strategy.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(key), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
