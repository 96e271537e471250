// Package client invokes DHCP proxy operations. It finds proxy instances
// through a registry, picks one with a load balancer and runs the call on a
// pooled transport to that instance.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dhcpproxy/codec"
	"dhcpproxy/loadbalance"
	"dhcpproxy/message"
	"dhcpproxy/metrics"
	"dhcpproxy/registry"
	"dhcpproxy/transport"
)

const (
	DefaultServiceName = "dhcp-proxy"
	DefaultPoolSize    = 2
	tracerName         = "dhcpproxy/client"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client is closed")

type Client struct {
	registry      registry.Registry // where proxy instances are found
	balancer      loadbalance.Balancer
	serviceName   string
	codec         codec.Codec
	poolSize      int
	transportOpts []transport.Option
	metrics       *metrics.Metrics
	tracer        trace.Tracer

	mu     sync.Mutex
	pools  map[string]*transport.Pool // one pool per instance address
	closed bool
	done   chan struct{}
}

type Option func(*Client)

func WithServiceName(name string) Option {
	return func(c *Client) { c.serviceName = name }
}

// WithCodec selects the codec Call uses for arguments and replies.
func WithCodec(codecType codec.CodecType) Option {
	return func(c *Client) { c.codec = codec.GetCodec(codecType) }
}

// WithPoolSize bounds the concurrent calls per proxy instance.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithTransportOptions configures the transports the client opens.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Client) { c.transportOpts = append(c.transportOpts, opts...) }
}

// WithMetrics records each call on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets where call spans go. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry:    reg,
		balancer:    bal,
		serviceName: DefaultServiceName,
		codec:       &codec.BinaryCodec{},
		poolSize:    DefaultPoolSize,
		tracer:      otel.Tracer(tracerName),
		pools:       make(map[string]*transport.Pool),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.watch(reg.Watch(c.serviceName))
	return c
}

// Dial returns a client bound to the single proxy at network and address.
func Dial(network, address string, opts ...Option) *Client {
	reg := registry.NewStaticRegistry(DefaultServiceName, registry.ProxyInstance{
		Network: network,
		Addr:    address,
		Weight:  1,
	})
	return NewClient(reg, &loadbalance.RoundRobinBalancer{}, opts...)
}

// watch closes the pools of instances that leave the registry.
func (c *Client) watch(updates <-chan []registry.ProxyInstance) {
	for {
		select {
		case <-c.done:
			return
		case instances, ok := <-updates:
			if !ok {
				return
			}
			c.prune(instances)
		}
	}
}

func (c *Client) prune(instances []registry.ProxyInstance) {
	live := make(map[string]bool, len(instances))
	for _, inst := range instances {
		live[inst.Addr] = true
	}

	c.mu.Lock()
	var stale []*transport.Pool
	for addr, pool := range c.pools {
		if !live[addr] {
			stale = append(stale, pool)
			delete(c.pools, addr)
			log.Debug().Str("addr", addr).Msg("Proxy instance left, closing its transports")
		}
	}
	c.mu.Unlock()

	for _, pool := range stale {
		_ = pool.Close()
	}
}

func (c *Client) pool(instance *registry.ProxyInstance) (*transport.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if pool, ok := c.pools[instance.Addr]; ok {
		return pool, nil
	}

	network := instance.Network
	if network == "" {
		network = "tcp"
	}
	dial, err := transport.PipeDialer(network, instance.Addr)
	if err != nil {
		return nil, err
	}

	pool := transport.NewPool(dial, c.poolSize, c.transportOpts...)
	c.pools[instance.Addr] = pool
	return pool, nil
}

// Call invokes op with args encoded by the client's codec and decodes the
// result into reply. A nil args sends no argument bytes; a nil reply
// discards the result.
func (c *Client) Call(op message.OpCode, args any, reply any) error {
	return c.CallContext(context.Background(), op, args, reply)
}

// CallContext is Call with a context carrying the caller's trace. The
// context is checked before the call is sent; an invocation in progress
// runs to completion.
func (c *Client) CallContext(ctx context.Context, op message.OpCode, args any, reply any) error {
	return c.call(ctx, c.codec, op, args, reply)
}

func (c *Client) call(ctx context.Context, cdc codec.Codec, op message.OpCode, args any, reply any) (err error) {
	ctx, span := c.tracer.Start(ctx, "dhcpproxy "+op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("dhcp_proxy.op", op.String()),
			attribute.String("dhcp_proxy.codec", cdc.Type().String()),
		))
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.Observe(op.String(), start, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	req := &message.Request{Op: op}
	if args != nil {
		if req.Args, err = cdc.Encode(args); err != nil {
			return fmt.Errorf("encoding %s arguments: %w", op, err)
		}
	}
	payload, err := req.MarshalBinary()
	if err != nil {
		return err
	}

	instances, err := c.registry.Discover(c.serviceName)
	if err != nil {
		return err
	}
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dhcp_proxy.instance", instance.Addr))

	pool, err := c.pool(instance)
	if err != nil {
		return err
	}

	resp, err := pool.Invoke(payload)
	if err != nil {
		return err
	}

	if reply != nil {
		if err := cdc.Decode(resp, reply); err != nil {
			return fmt.Errorf("decoding %s result: %w", op, err)
		}
	}
	return nil
}

// Close closes every transport. Calls in progress fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	pools := c.pools
	c.pools = nil
	c.mu.Unlock()

	var errs []error
	for _, pool := range pools {
		if err := pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
