package transport

import (
	"math"
	"time"

	"dhcpproxy/buffer"
	"dhcpproxy/protocol"
)

const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultBufferSize        = 4096
	DefaultMaxRetainedBuffer = 64 * 1024

	// DefaultMaxResponseSize bounds what a single corrupt header can make
	// the transport allocate. Pass protocol.MaxPayloadLength to
	// WithMaxResponseSize to accept every length the header can declare.
	DefaultMaxResponseSize = 64 << 20
)

// maxFrameLength is the largest frame the response buffer can be grown to
// hold on this platform. buffer.GrowSize adds up to Quantum-1 bytes.
const maxFrameLength int64 = math.MaxInt - buffer.Quantum

type options struct {
	connectTimeout    time.Duration
	ioTimeout         time.Duration
	initialBufferSize int
	maxRetainedBuffer int
	maxResponseSize   int
}

func defaultOptions() options {
	return options{
		connectTimeout:    DefaultConnectTimeout,
		initialBufferSize: DefaultBufferSize,
		maxRetainedBuffer: DefaultMaxRetainedBuffer,
		maxResponseSize:   DefaultMaxResponseSize,
	}
}

// Option configures a ClientTransport.
type Option func(*options)

// WithConnectTimeout bounds how long a single connect, including its
// retries, may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithIOTimeout sets a deadline on each write and read of an exchange.
// Zero, the default, waits indefinitely.
func WithIOTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.ioTimeout = d
		}
	}
}

// WithBufferSize sets the initial size of the request and response buffers.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= protocol.HeaderSize {
			o.initialBufferSize = n
		}
	}
}

// WithMaxRetainedBuffer sets the size buffers are shrunk back to after a
// large exchange.
func WithMaxRetainedBuffer(n int) Option {
	return func(o *options) {
		if n >= protocol.HeaderSize {
			o.maxRetainedBuffer = n
		}
	}
}

// WithMaxResponseSize caps the payload length accepted from the proxy.
// Larger declared lengths are treated as a corrupt stream. On 32-bit
// platforms lengths whose frame cannot be addressed are rejected as well.
func WithMaxResponseSize(n int) Option {
	return func(o *options) {
		if n >= 0 && n <= protocol.MaxPayloadLength {
			o.maxResponseSize = n
		}
	}
}
