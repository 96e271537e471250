// Package protocol implements the binary frame protocol spoken between a DHCP
// management client and the DHCP proxy over a duplex pipe.
//
// Every frame is an 8-byte header followed by a variable-length payload. The
// receiver reads the header first to learn the payload length, then reads
// exactly that many bytes.
//
// Frame format (all integers big-endian):
//
//	0        4            8
//	┌────────┬────────────┬───────────────────┐
//	│ i | id │ payloadLen │   payload ...     │
//	│ 4b|28b │   int32    │ payloadLen bytes  │
//	└────────┴────────────┴───────────────────┘
//
// The top nibble of the first word is the Instruction, the remaining 28 bits
// are the message id echoed by the proxy in its response.
package protocol

import (
	"fmt"
	"io"
)

// WriteFrame writes a complete frame (header + payload) to w.
// The caller must serialize writers sharing w, otherwise frames from
// different requests interleave and corrupt the stream.
func WriteFrame(w io.Writer, instruction Instruction, messageID uint32, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("%w: payload length %d", ErrArgumentOutOfRange, len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	off, err := WriteHeader(buf, 0, instruction, messageID, int32(len(payload)))
	if err != nil {
		return err
	}
	copy(buf[off:], payload)

	_, err = w.Write(buf)
	return err
}

// ReadFrame reads a complete frame (header + payload) from r.
// It uses io.ReadFull so that short reads on the underlying stream are
// retried until the declared length is satisfied.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, nil, err
	}

	h, _, _, err := ReadHeader(raw[:], 0, HeaderSize)
	if err != nil {
		return Header{}, nil, err
	}
	if h.PayloadLength < 0 {
		return h, nil, fmt.Errorf("%w: negative payload length %d", ErrFrameCorrupt, h.PayloadLength)
	}

	payload := make([]byte, h.PayloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return h, nil, err
	}

	return h, payload, nil
}
