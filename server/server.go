// Package server implements the proxy side of the pipe protocol: it accepts
// connections, decodes InvokeRequest frames, dispatches them to operation
// handlers through a middleware chain and frames the result or error.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → ReadFrame → decode selector → middleware chain → handler
//	  → InvokeResponse, or the exception instruction matching the error
//
// Frames on one connection are handled strictly in order, so a response
// always answers the most recent request.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"dhcpproxy/message"
	"dhcpproxy/middleware"
	"dhcpproxy/protocol"
	"dhcpproxy/registry"
)

const (
	DefaultServiceName     = "dhcp-proxy"
	defaultRegistrationTTL = 10 // seconds
)

// Server dispatches proxy operations received over pipe connections.
type Server struct {
	handlers    map[message.OpCode]middleware.HandlerFunc
	middlewares []middleware.Middleware // applied in the order added
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	serviceName string
	version     string
	ttl         int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	ready    chan struct{}

	ctx      context.Context // cancelled by Shutdown
	cancel   context.CancelFunc
	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool    // set before the listener closes so Accept errors are expected

	registry registry.Registry // nil if not using discovery
	instance registry.ProxyInstance
}

type Option func(*Server)

// WithServiceName sets the name instances are registered under.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

// WithVersion sets the version advertised in the registry.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithRegistrationTTL sets the registry lease TTL in seconds.
func WithRegistrationTTL(ttl int64) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewServer creates a server with no operations registered.
func NewServer(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handlers:    make(map[message.OpCode]middleware.HandlerFunc),
		serviceName: DefaultServiceName,
		ttl:         defaultRegistrationTTL,
		conns:       make(map[net.Conn]struct{}),
		ready:       make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers fn for op, replacing any previous handler. Handlers must
// be registered before Serve.
func (svr *Server) Handle(op message.OpCode, fn middleware.HandlerFunc) {
	svr.handlers[op] = fn
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Ready is closed once Serve is listening.
func (svr *Server) Ready() <-chan struct{} {
	return svr.ready
}

// Addr returns the listening address, or nil before Serve is listening.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()

	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// Serve listens on network and address, optionally registers the instance
// in reg under advertiseAddr, and accepts connections until Shutdown.
//
// network is "pipe", "unix" or "tcp". advertiseAddr is what clients dial;
// it differs from address when listening on a wildcard.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := listen(network, address)
	if err != nil {
		return err
	}

	// Built once: Chain(A, B, C)(dispatch) runs A.before → B.before → C.before → dispatch.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		listener.Close()
		return nil
	}
	svr.listener = listener
	svr.mu.Unlock()
	close(svr.ready)

	log.Info().Str("network", network).Str("address", listener.Addr().String()).Msg("Proxy listening")

	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	if reg != nil {
		svr.registry = reg
		svr.instance = registry.NewProxyInstance(network, advertiseAddr, 1, svr.version)
		if err := reg.Register(svr.serviceName, svr.instance, svr.ttl); err != nil {
			log.Warn().Err(err).Str("service", svr.serviceName).Msg("Registering proxy instance failed")
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn serves one connection until the client closes it or sends a
// frame that leaves the stream unusable.
func (svr *Server) handleConn(conn net.Conn) {
	if !svr.track(conn) {
		conn.Close()
		return
	}
	defer svr.untrack(conn)
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		h, payload, err := protocol.ReadFrame(r)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameCorrupt) {
				svr.reply(conn, h.MessageID, protocol.TransportException, protocol.EncodeTransportException(protocol.ReasonInvalidSize))
			} else if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				log.Debug().Err(err).Msg("Proxy connection read failed")
			}
			return
		}

		// Frames read after Shutdown began are dropped so the drain ends.
		svr.mu.Lock()
		if svr.shutdown.Load() {
			svr.mu.Unlock()
			return
		}
		svr.wg.Add(1)
		svr.mu.Unlock()

		keep := svr.serveFrame(conn, h, payload)
		svr.wg.Done()

		if !keep {
			return
		}
	}
}

// serveFrame answers one frame and reports whether the connection can
// carry further frames.
func (svr *Server) serveFrame(w io.Writer, h protocol.Header, payload []byte) bool {
	if h.Instruction != protocol.InvokeRequest {
		svr.reply(w, h.MessageID, protocol.TransportException, protocol.EncodeTransportException(protocol.ReasonUnknownInstruct))
		return false
	}

	var req message.Request
	if err := req.UnmarshalBinary(payload); err != nil {
		return svr.reply(w, h.MessageID, protocol.TransportException, protocol.EncodeTransportException(protocol.ReasonIncomplete))
	}

	result, err := svr.handler(svr.ctx, &req)
	if err != nil {
		in, body := protocol.EncodeError(err)
		return svr.reply(w, h.MessageID, in, body)
	}
	return svr.reply(w, h.MessageID, protocol.InvokeResponse, result)
}

func (svr *Server) reply(w io.Writer, id uint32, in protocol.Instruction, payload []byte) bool {
	if err := protocol.WriteFrame(w, in, id, payload); err != nil {
		log.Debug().Err(err).Uint32("id", id).Stringer("instruction", in).Msg("Writing reply failed")
		return false
	}
	return true
}

// dispatch is the innermost handler: it looks the operation up.
func (svr *Server) dispatch(ctx context.Context, req *message.Request) ([]byte, error) {
	fn, ok := svr.handlers[req.Op]
	if !ok {
		return nil, &protocol.RemoteError{Message: fmt.Sprintf("unknown operation %s", req.Op)}
	}
	return fn(ctx, req)
}

func (svr *Server) track(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()

	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrack(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop picking this instance
//  2. Set the shutdown flag and close the listener
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining, now idle, connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		if err := svr.registry.Deregister(svr.serviceName, svr.instance.Addr); err != nil {
			log.Warn().Err(err).Msg("Deregistering proxy instance failed")
		}
	}

	svr.mu.Lock()
	svr.shutdown.Store(true)
	listener := svr.listener
	svr.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.cancel()

	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()

	return err
}
