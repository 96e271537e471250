package registry

import "sync"

// StaticRegistry keeps instances in memory. It serves single-host
// deployments where the proxy pipe is known up front, and tests.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]ProxyInstance
	watchers  map[string][]chan []ProxyInstance
}

// NewStaticRegistry returns a registry holding instances under serviceName.
func NewStaticRegistry(serviceName string, instances ...ProxyInstance) *StaticRegistry {
	r := &StaticRegistry{
		instances: make(map[string][]ProxyInstance),
		watchers:  make(map[string][]chan []ProxyInstance),
	}
	if len(instances) > 0 {
		r.instances[serviceName] = append([]ProxyInstance(nil), instances...)
	}
	return r
}

// Register adds or replaces the instance with the same address. ttl is
// ignored.
func (r *StaticRegistry) Register(serviceName string, instance ProxyInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.instances[serviceName]
	for i := range list {
		if list[i].Addr == instance.Addr {
			list[i] = instance
			r.notify(serviceName)
			return nil
		}
	}
	r.instances[serviceName] = append(list, instance)
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.instances[serviceName]
	for i := range list {
		if list[i].Addr == addr {
			r.instances[serviceName] = append(list[:i:i], list[i+1:]...)
			r.notify(serviceName)
			break
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(serviceName string) ([]ProxyInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ProxyInstance{}, r.instances[serviceName]...), nil
}

// Watch emits the instance list after each change. A slow reader only ever
// sees the latest list.
func (r *StaticRegistry) Watch(serviceName string) <-chan []ProxyInstance {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan []ProxyInstance, 1)
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	return ch
}

// notify must be called with mu held.
func (r *StaticRegistry) notify(serviceName string) {
	for _, ch := range r.watchers[serviceName] {
		snapshot := append([]ProxyInstance{}, r.instances[serviceName]...)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
