package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameCorrupt reports bytes that cannot be a well-formed frame or field.
	ErrFrameCorrupt = errors.New("frame corrupt")
	// ErrArgumentOutOfRange reports a value the encoder cannot represent.
	ErrArgumentOutOfRange = errors.New("argument out of range")
	// ErrProtocolCorrupt is matched by every ProtocolError. The connection
	// that produced it has been torn down.
	ErrProtocolCorrupt = errors.New("protocol corrupt")
)

// DhcpServerError is a DHCP server API failure reported by the proxy. Code is
// the Win32 error code returned by the API named in APIFunction.
type DhcpServerError struct {
	Code        int32
	APIFunction string
	Description string
}

func (e *DhcpServerError) Error() string {
	msg := fmt.Sprintf("dhcp server error %d", e.Code)
	if e.APIFunction != "" {
		msg += " in " + e.APIFunction
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// RemoteTransportError is a protocol failure the proxy detected on its side
// of the pipe.
type RemoteTransportError struct {
	Message string
}

func (e *RemoteTransportError) Error() string {
	return "proxy transport error: " + e.Message
}

// RemoteError is any other failure raised by the proxy.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "proxy error: " + e.Message
}

// ProtocolError is a framing violation detected locally: an id mismatch, a
// truncated message, an unknown instruction or an impossible length.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolCorrupt
}

// Messages carried by ProtocolError.Reason.
const (
	ReasonInvalidSize     = "Invalid Request Size (>2GB)"
	ReasonIncomplete      = "Incomplete message received, protocol corrupt."
	ReasonOutOfOrder      = "Messages sequence out of order, protocol corrupt."
	ReasonUnknownInstruct = "Unknown transport version/instruction"
)
