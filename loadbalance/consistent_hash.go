package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"dhcpproxy/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps keys to instances on a hash ring. The same key
// maps to the same instance until the ring changes, so the management
// sessions a proxy holds for one DHCP server are reused.
//
// Each instance owns replicas virtual nodes hashed from "{addr}#{i}"; without
// them a handful of instances clusters on the ring and load is uneven.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string // used by Pick, typically the managed DHCP server name
	replicas int

	mu        sync.RWMutex
	ring      []uint32
	nodes     map[uint32]*registry.ProxyInstance
	signature string // addresses the ring was built from
}

// NewConsistentHashBalancer returns a balancer whose Pick routes key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: defaultReplicas,
		nodes:    make(map[uint32]*registry.ProxyInstance),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance *registry.ProxyInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.add(instance)
	b.sortRing()
}

func (b *ConsistentHashBalancer) add(instance *registry.ProxyInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

func (b *ConsistentHashBalancer) sortRing() {
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick routes the configured key over instances, rebuilding the ring when
// the set of addresses has changed since the last call.
func (b *ConsistentHashBalancer) Pick(instances []registry.ProxyInstance) (*registry.ProxyInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	sig := signature(instances)

	b.mu.RLock()
	current := b.signature == sig
	b.mu.RUnlock()

	if !current {
		b.mu.Lock()
		if b.signature != sig {
			b.ring = b.ring[:0]
			b.nodes = make(map[uint32]*registry.ProxyInstance, len(instances)*b.replicas)
			for i := range instances {
				inst := instances[i]
				b.add(&inst)
			}
			b.sortRing()
			b.signature = sig
		}
		b.mu.Unlock()
	}

	return b.PickKey(b.key)
}

// PickKey returns the instance responsible for key: the first virtual node
// clockwise from the key's hash.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ProxyInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func signature(instances []registry.ProxyInstance) string {
	addrs := make([]string, len(instances))
	for i := range instances {
		addrs[i] = instances[i].Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}
