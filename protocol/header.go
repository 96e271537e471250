package protocol

import (
	"fmt"
	"math"
)

const (
	// HeaderSize is the fixed size of every frame header.
	HeaderSize = 8
	// MaxMessageID is the largest id that fits the 28-bit id field.
	MaxMessageID uint32 = 0x0FFFFFFF
	// MaxPayloadLength is the largest length the int32 length field can declare.
	MaxPayloadLength = math.MaxInt32

	instructionShift = 28
	messageIDMask    = 0x0FFFFFFF
	instructionMask  = 0x0F
)

// Instruction is the 4-bit frame kind carried in the top nibble of the header.
type Instruction uint8

const (
	InvokeRequest       Instruction = 0  // client → proxy call
	InvokeResponse      Instruction = 1  // normal result
	DhcpServerException Instruction = 12 // DHCP server API failure reported by the proxy
	TransportException  Instruction = 13 // protocol failure detected by the proxy
	Exception           Instruction = 14 // any other failure on the proxy
)

var instructionNames = map[Instruction]string{
	InvokeRequest:       "InvokeRequest",
	InvokeResponse:      "InvokeResponse",
	DhcpServerException: "DhcpServerException",
	TransportException:  "TransportException",
	Exception:           "Exception",
}

func (i Instruction) String() string {
	if name, ok := instructionNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Instruction(%d)", uint8(i))
}

// Known reports whether i is one of the defined instructions. Values 2-11
// and 15 are reserved.
func (i Instruction) Known() bool {
	_, ok := instructionNames[i]
	return ok
}

// Header is the decoded form of the 8-byte frame header.
type Header struct {
	Instruction   Instruction
	MessageID     uint32 // 28 significant bits
	PayloadLength int32
}

func (h Header) String() string {
	return fmt.Sprintf("frame{%s id=%d len=%d}", h.Instruction, h.MessageID, h.PayloadLength)
}

// WriteHeader packs the header at buf[off:off+8] and returns the offset
// following it. An instruction wider than 4 bits, an id wider than 28 bits or
// a buffer without 8 bytes of room is a caller bug and yields
// ErrArgumentOutOfRange.
func WriteHeader(buf []byte, off int, instruction Instruction, messageID uint32, payloadLength int32) (int, error) {
	if instruction > instructionMask {
		return off, fmt.Errorf("%w: instruction %d exceeds 4 bits", ErrArgumentOutOfRange, instruction)
	}
	if messageID > MaxMessageID {
		return off, fmt.Errorf("%w: message id %#x exceeds 28 bits", ErrArgumentOutOfRange, messageID)
	}
	if off < 0 || off+HeaderSize > len(buf) {
		return off, fmt.Errorf("%w: header at offset %d needs %d bytes, buffer holds %d", ErrArgumentOutOfRange, off, HeaderSize, len(buf))
	}

	word := uint32(instruction)<<instructionShift | messageID&messageIDMask
	off = WriteInt32(buf, off, int32(word))
	off = WriteInt32(buf, off, payloadLength)
	return off, nil
}

// ReadHeader unpacks the header at buf[off:]. available is the number of
// bytes the caller has received from off onwards; it must be at least
// HeaderSize. The header is consumed, so the returned remaining count is
// available - HeaderSize.
func ReadHeader(buf []byte, off int, available int) (h Header, next int, remaining int, err error) {
	if available < HeaderSize || off < 0 || off+HeaderSize > len(buf) {
		return Header{}, off, available, fmt.Errorf("%w: %d bytes available for a %d byte header", ErrFrameCorrupt, available, HeaderSize)
	}

	word, next := ReadInt32(buf, off)
	length, next := ReadInt32(buf, next)

	h = Header{
		Instruction:   Instruction(uint32(word) >> instructionShift),
		MessageID:     uint32(word) & messageIDMask,
		PayloadLength: length,
	}
	return h, next, available - HeaderSize, nil
}
