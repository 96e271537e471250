// Package message defines the request envelope carried in the payload of an
// InvokeRequest frame.
//
// A request payload is a 4-byte big-endian operation selector followed by the
// operation's argument bytes. The response payload is the operation's result
// bytes with no envelope; failures travel as exception frames instead.
package message

import (
	"fmt"

	"dhcpproxy/protocol"
)

// OpCode selects the proxy operation a request invokes.
type OpCode int32

const (
	OpGetProxyVersion  OpCode = 0
	OpConnect          OpCode = 1
	OpDisconnect       OpCode = 2
	OpGetServerVersion OpCode = 3
)

var opNames = map[OpCode]string{
	OpGetProxyVersion:  "GetProxyVersion",
	OpConnect:          "Connect",
	OpDisconnect:       "Disconnect",
	OpGetServerVersion: "GetServerVersion",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int32(op))
}

// ParseOpCode returns the operation called name.
func ParseOpCode(name string) (OpCode, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// Request carries a single invocation.
//
//   - Op selects the operation.
//   - Args holds the encoded arguments, possibly empty.
type Request struct {
	Op   OpCode
	Args []byte
}

// MarshalBinary lays out the selector followed by the arguments.
func (r *Request) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4+len(r.Args))
	off := protocol.WriteInt32(buf, 0, int32(r.Op))
	copy(buf[off:], r.Args)
	return buf, nil
}

// UnmarshalBinary parses a request payload. Args aliases data.
func (r *Request) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: request payload of %d bytes", protocol.ErrFrameCorrupt, len(data))
	}

	op, off := protocol.ReadInt32(data, 0)
	r.Op = OpCode(op)
	r.Args = data[off:]
	return nil
}
