package protocol

import (
	"errors"
	"fmt"
)

// Exception payload layouts:
//
//	DhcpServerException := Code(int32) Embedded(APIFunction) Embedded(Description)
//	TransportException  := Embedded(Message)
//	Exception           := Embedded(Message)

// nullable returns nil for an empty string so that it travels as an absent
// field rather than a zero-length one.
func nullable(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// EncodeDhcpServerException builds the payload of a DhcpServerException frame.
func EncodeDhcpServerException(e *DhcpServerError) []byte {
	fn, desc := nullable(e.APIFunction), nullable(e.Description)
	buf := make([]byte, 4+EmbeddedSize(fn)+EmbeddedSize(desc))

	off := WriteInt32(buf, 0, e.Code)
	off = WriteEmbedded(buf, off, fn)
	WriteEmbedded(buf, off, desc)
	return buf
}

// EncodeTransportException builds the payload of a TransportException frame.
func EncodeTransportException(message string) []byte {
	return encodeMessage(message)
}

// EncodeException builds the payload of an Exception frame.
func EncodeException(message string) []byte {
	return encodeMessage(message)
}

func encodeMessage(message string) []byte {
	value := nullable(message)
	buf := make([]byte, EmbeddedSize(value))
	WriteEmbedded(buf, 0, value)
	return buf
}

// EncodeError maps err onto the exception instruction that carries it and
// returns the instruction with its payload.
func EncodeError(err error) (Instruction, []byte) {
	var (
		dhcpErr      *DhcpServerError
		transportErr *RemoteTransportError
		remoteErr    *RemoteError
	)

	switch {
	case errors.As(err, &dhcpErr):
		return DhcpServerException, EncodeDhcpServerException(dhcpErr)
	case errors.As(err, &transportErr):
		return TransportException, EncodeTransportException(transportErr.Message)
	case errors.As(err, &remoteErr):
		return Exception, EncodeException(remoteErr.Message)
	default:
		return Exception, EncodeException(err.Error())
	}
}

// DecodeException rebuilds the error carried by an exception frame payload.
// An instruction that does not carry an exception yields a ProtocolError.
func DecodeException(instruction Instruction, payload []byte) error {
	switch instruction {
	case DhcpServerException:
		if len(payload) < 4 {
			return fmt.Errorf("%w: dhcp server exception of %d bytes", ErrFrameCorrupt, len(payload))
		}
		code, off := ReadInt32(payload, 0)
		fn, _, off, err := ReadEmbeddedString(payload, off)
		if err != nil {
			return err
		}
		desc, _, _, err := ReadEmbeddedString(payload, off)
		if err != nil {
			return err
		}
		return &DhcpServerError{Code: code, APIFunction: fn, Description: desc}

	case TransportException:
		msg, _, _, err := ReadEmbeddedString(payload, 0)
		if err != nil {
			return err
		}
		return &RemoteTransportError{Message: msg}

	case Exception:
		msg, _, _, err := ReadEmbeddedString(payload, 0)
		if err != nil {
			return err
		}
		return &RemoteError{Message: msg}

	default:
		return &ProtocolError{Reason: ReasonUnknownInstruct, Err: fmt.Errorf("instruction %d", uint8(instruction))}
	}
}
