package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	keyPrefix      = "/dhcp-proxy/"
	requestTimeout = 5 * time.Second
)

// EtcdRegistry implements Registry on etcd v3. It is the shared directory
// of proxy endpoints:
//
//	Key:   /dhcp-proxy/{ServiceName}/{Addr}
//	Value: JSON-encoded ProxyInstance
//
// Registration uses TTL-based leases: if a proxy host dies, the lease
// expires and the entry is removed without anyone deregistering it.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	ctx    context.Context  // cancelled by Close; ends keepalives and watches
	cancel context.CancelFunc
}

// NewEtcdRegistry creates a registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: requestTimeout,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{client: c, ctx: ctx, cancel: cancel}, nil
}

func serviceKey(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

// Register stores instance under a lease of ttl seconds and keeps the lease
// alive until Deregister or Close.
//
// The lease id is not kept on the struct so one EtcdRegistry can register
// several instances concurrently.
func (r *EtcdRegistry) Register(serviceName string, instance ProxyInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, serviceKey(serviceName)+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills.
	go func() {
		for range ch {
		}
		log.Debug().Str("service", serviceName).Str("addr", instance.Addr).Msg("Registry lease keepalive stopped")
	}()
	return nil
}

// Deregister removes an instance. Called during graceful shutdown before
// the listener closes.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()

	_, err := r.client.Delete(ctx, serviceKey(serviceName)+addr)
	return err
}

// Watch emits the full instance list whenever anything under the service
// prefix changes, including lease expiry.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ProxyInstance {
	ch := make(chan []ProxyInstance, 1)

	go func() {
		defer close(ch)

		watchChan := r.client.Watch(r.ctx, serviceKey(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetching is simpler than applying individual events.
			instances, err := r.Discover(serviceName)
			if err != nil {
				log.Warn().Err(err).Str("service", serviceName).Msg("Registry refresh failed")
				continue
			}
			select {
			case ch <- instances:
			case <-r.ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every instance currently registered for a service.
func (r *EtcdRegistry) Discover(serviceName string) ([]ProxyInstance, error) {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ProxyInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ProxyInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			log.Warn().Err(err).Bytes("key", kv.Key).Msg("Skipping malformed registry entry")
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close stops keepalives and watches and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
