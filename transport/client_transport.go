// Package transport implements the client side of the proxy pipe protocol.
//
// A ClientTransport owns one duplex connection to the DHCP proxy, the
// message-id counter and the connection's buffer set. Invoke is single-flight:
// concurrent callers are serialized, each completing its full
// request/response cycle before the next one writes.
//
//	Invoke(payload)
//	  ├─ frame InvokeRequest{id} into the request buffer
//	  ├─ reconnect once if the pipe is down, write, read
//	  ├─ decode header, read until the declared payload is present
//	  ├─ check the echoed id
//	  └─ InvokeResponse → payload, exception instructions → typed error
//
// Any framing violation closes the connection. The next Invoke dials again.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"dhcpproxy/buffer"
	"dhcpproxy/protocol"
)

// ErrClosed is returned by Invoke after Close.
var ErrClosed = errors.New("transport is closed")

// State is the connection state of a ClientTransport.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateFaulted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ClientTransport manages a single pipe connection to the proxy.
type ClientTransport struct {
	dial Dialer
	opts options

	invoking sync.Mutex // single-flight gate: counter, buffers and the exchange on conn
	nextID   uint32
	bufs     *buffer.Buffers
	pending  int // bytes of a following frame already held at the start of bufs.Response

	connMu sync.Mutex // guards conn only, so Close never waits for an in-flight Invoke
	conn   net.Conn

	state    atomic.Int32
	disposed atomic.Bool
}

// NewClientTransport returns a transport that connects through dial. The
// connection is opened lazily by the first Invoke, or eagerly by Connect.
func NewClientTransport(dial Dialer, opts ...Option) *ClientTransport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &ClientTransport{
		dial: dial,
		opts: o,
		bufs: buffer.New(o.initialBufferSize),
	}
}

// State reports the current connection state.
func (t *ClientTransport) State() State {
	return State(t.state.Load())
}

// Connect opens the connection if it is not already open.
func (t *ClientTransport) Connect() error {
	t.invoking.Lock()
	defer t.invoking.Unlock()

	if t.disposed.Load() {
		return ErrClosed
	}

	_, err := t.ensureConnected()
	return err
}

// Invoke sends request as one InvokeRequest frame and returns the payload of
// the matching InvokeResponse. The returned slice is owned by the caller.
//
// Exception frames are returned as *protocol.DhcpServerError,
// *protocol.RemoteTransportError or *protocol.RemoteError; the connection
// stays usable. Framing violations are returned as *protocol.ProtocolError
// after the connection has been closed.
func (t *ClientTransport) Invoke(request []byte) ([]byte, error) {
	if len(request) > protocol.MaxPayloadLength-protocol.HeaderSize || int64(len(request)) > maxFrameLength-protocol.HeaderSize {
		return nil, fmt.Errorf("%w: request of %d bytes", protocol.ErrArgumentOutOfRange, len(request))
	}

	t.invoking.Lock()
	defer t.invoking.Unlock()

	if t.disposed.Load() {
		return nil, ErrClosed
	}

	id := t.takeMessageID()

	frameLen := protocol.HeaderSize + len(request)
	t.bufs.Request = buffer.EnsureCapacity(t.bufs.Request, frameLen)

	off, err := protocol.WriteHeader(t.bufs.Request, 0, protocol.InvokeRequest, id, int32(len(request)))
	if err != nil {
		return nil, err
	}
	copy(t.bufs.Request[off:], request)

	conn, err := t.ensureConnected()
	if err != nil {
		return nil, err
	}

	if err := t.send(conn, t.bufs.Request[:frameLen]); err != nil {
		t.fault(conn, err)
		return nil, fmt.Errorf("writing request %d: %w", id, err)
	}

	t.bufs.Request = buffer.Shrink(t.bufs.Request, t.opts.maxRetainedBuffer)

	h, payload, err := t.receive(conn, id)
	if err != nil {
		return nil, err
	}

	switch h.Instruction {
	case protocol.InvokeResponse:
		return payload, nil
	case protocol.DhcpServerException, protocol.TransportException, protocol.Exception:
		return nil, protocol.DecodeException(h.Instruction, payload)
	default:
		return nil, t.corrupt(conn, protocol.ReasonUnknownInstruct, fmt.Errorf("instruction %d in response to %d", uint8(h.Instruction), id))
	}
}

// Close closes the connection. It is idempotent and does not wait for an
// in-flight Invoke; a blocked read or write fails once the pipe is closed.
func (t *ClientTransport) Close() error {
	if !t.disposed.CompareAndSwap(false, true) {
		return nil
	}

	// State changes happen under connMu after a disposed check, so nothing
	// overwrites StateClosed once it is stored here.
	t.connMu.Lock()
	t.state.Store(int32(StateClosed))
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// takeMessageID returns the id for the next request. Ids wrap to 0 after
// the largest value the 28-bit header field can carry.
func (t *ClientTransport) takeMessageID() uint32 {
	id := t.nextID
	t.nextID++
	if t.nextID > protocol.MaxMessageID {
		t.nextID = 0
	}
	return id
}

// ensureConnected returns the open connection, dialing once when there is
// none. The dial is bounded by the connect timeout.
func (t *ClientTransport) ensureConnected() (net.Conn, error) {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	if conn != nil {
		return conn, nil
	}

	conn, err := t.connect()
	if err != nil {
		return nil, err
	}

	t.connMu.Lock()
	if t.disposed.Load() {
		t.connMu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	t.conn = conn
	t.state.Store(int32(StateConnected))
	t.connMu.Unlock()

	// Bytes held back from the previous connection belong to a dead stream.
	t.pending = 0

	return conn, nil
}

// fault tears down conn after a write, read or framing failure.
func (t *ClientTransport) fault(conn net.Conn, cause error) {
	log.Debug().Err(cause).Str("state", t.State().String()).Msg("Closing proxy connection")

	t.connMu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	if !t.disposed.Load() {
		t.state.Store(int32(StateFaulted))
	}
	t.connMu.Unlock()

	_ = conn.Close()
	t.pending = 0
}

func (t *ClientTransport) send(conn net.Conn, frame []byte) error {
	if t.opts.ioTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(t.opts.ioTimeout)); err != nil {
			return err
		}
	}

	for len(frame) > 0 {
		n, err := conn.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}

	if f, ok := conn.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// receive reads one response frame for request id into the response buffer
// and returns its header with a copy of its payload.
func (t *ClientTransport) receive(conn net.Conn, id uint32) (protocol.Header, []byte, error) {
	n := t.pending
	t.pending = 0

	t.bufs.Response, t.bufs.Scratch = buffer.EnsureCapacityPreserve(t.bufs.Response, t.bufs.Scratch, protocol.HeaderSize)

	n, err := t.readAtLeast(conn, n, protocol.HeaderSize)
	if err != nil {
		return protocol.Header{}, nil, t.corrupt(conn, protocol.ReasonIncomplete, err)
	}

	h, off, _, err := protocol.ReadHeader(t.bufs.Response, 0, n)
	if err != nil {
		return h, nil, t.corrupt(conn, protocol.ReasonIncomplete, err)
	}

	frameLen, err := frameLength(off, h.PayloadLength, t.opts.maxResponseSize, maxFrameLength)
	if err != nil {
		return h, nil, t.corrupt(conn, protocol.ReasonInvalidSize, err)
	}

	if n < frameLen {
		t.bufs.Response, t.bufs.Scratch = buffer.EnsureCapacityPreserve(t.bufs.Response, t.bufs.Scratch, frameLen)

		n, err = t.readAtLeast(conn, n, frameLen)
		if err != nil {
			return h, nil, t.corrupt(conn, protocol.ReasonIncomplete, err)
		}
	}

	if h.MessageID != id {
		return h, nil, t.corrupt(conn, protocol.ReasonOutOfOrder, fmt.Errorf("sent %d, received %d", id, h.MessageID))
	}

	payload := make([]byte, h.PayloadLength)
	copy(payload, t.bufs.Response[off:frameLen])

	t.pending, t.bufs.Scratch = buffer.ReindexRemainder(t.bufs.Response, frameLen, n-frameLen, t.bufs.Scratch)
	t.bufs.Response, t.bufs.Scratch = buffer.ShrinkPreserve(t.bufs.Response, t.pending, t.opts.maxRetainedBuffer, t.bufs.Scratch)
	t.bufs.Scratch = buffer.Shrink(t.bufs.Scratch, t.opts.maxRetainedBuffer)

	return h, payload, nil
}

// frameLength returns the length of a frame whose payload starts at off,
// rejecting negative lengths, lengths over maxPayload and frames longer than
// limit. The sum is taken in int64 so it cannot wrap where int is 32 bits.
func frameLength(off int, payloadLength int32, maxPayload int, limit int64) (int, error) {
	if payloadLength < 0 || int64(payloadLength) > int64(maxPayload) {
		return 0, fmt.Errorf("declared payload of %d bytes", payloadLength)
	}

	total := int64(off) + int64(payloadLength)
	if total > limit {
		return 0, fmt.Errorf("frame of %d bytes exceeds %d", total, limit)
	}
	return int(total), nil
}

// readAtLeast reads into the response buffer after the n bytes it already
// holds until it holds want bytes, tolerating short reads. The buffer must
// already be at least want bytes long.
func (t *ClientTransport) readAtLeast(conn net.Conn, n, want int) (int, error) {
	if n >= want {
		return n, nil
	}

	if t.opts.ioTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(t.opts.ioTimeout)); err != nil {
			return n, err
		}
	}

	for n < want {
		m, err := conn.Read(t.bufs.Response[n:])
		n += m
		if err != nil {
			if n >= want {
				return n, nil
			}
			if errors.Is(err, io.EOF) {
				return n, io.ErrUnexpectedEOF
			}
			return n, err
		}
		if m == 0 {
			return n, io.ErrNoProgress
		}
	}
	return n, nil
}

// corrupt closes conn and returns the ProtocolError describing why.
func (t *ClientTransport) corrupt(conn net.Conn, reason string, cause error) error {
	err := &protocol.ProtocolError{Reason: reason, Err: cause}
	t.fault(conn, err)
	return err
}

// connect dials the proxy, retrying with backoff until the connect timeout
// expires. A pipe that is being recreated or is busy refuses connections for
// a short while.
func (t *ClientTransport) connect() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.connectTimeout)
	defer cancel()

	conn, err := dialWithBackoff(ctx, t.dial)
	if err != nil {
		return nil, fmt.Errorf("connecting to proxy: %w", err)
	}

	log.Debug().Str("remote", remoteAddr(conn)).Msg("Connected to proxy")
	return conn, nil
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
