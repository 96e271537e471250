package codec

import (
	"encoding"
	"encoding/binary"
	"fmt"

	"dhcpproxy/protocol"
)

// BinaryCodec lays values out the way the proxy reads them:
//
//	int32, uint32, bool  4 bytes big-endian (bool as 0 or 1)
//	int64                8 bytes big-endian
//	string, []byte       embedded field; nil []byte or nil *string is null
//	[]any                each element in turn
//
// Types implementing encoding.BinaryMarshaler are written as an embedded
// field holding their marshaled form. Decode takes pointers to the same
// types, or a []any of such pointers.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	return appendValue(nil, v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	off, err := decodeValue(data, 0, v)
	if err != nil {
		return err
	}
	if off != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", protocol.ErrFrameCorrupt, len(data)-off)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func appendEmbedded(buf, value []byte) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, protocol.EmbeddedSize(value))...)
	protocol.WriteEmbedded(buf, start, value)
	return buf
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return appendEmbedded(buf, nil), nil
	case int32:
		return binary.BigEndian.AppendUint32(buf, uint32(v)), nil
	case uint32:
		return binary.BigEndian.AppendUint32(buf, v), nil
	case int64:
		return binary.BigEndian.AppendUint64(buf, uint64(v)), nil
	case bool:
		var b uint32
		if v {
			b = 1
		}
		return binary.BigEndian.AppendUint32(buf, b), nil
	case string:
		return appendEmbedded(buf, []byte(v)), nil
	case *string:
		if v == nil {
			return appendEmbedded(buf, nil), nil
		}
		return appendEmbedded(buf, []byte(*v)), nil
	case []byte:
		return appendEmbedded(buf, v), nil
	case encoding.BinaryMarshaler:
		data, err := v.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return appendEmbedded(buf, data), nil
	case []any:
		var err error
		for _, elem := range v {
			if buf, err = appendValue(buf, elem); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("BinaryCodec: unsupported type %T", v)
	}
}

func need(data []byte, off, n int) error {
	if off+n > len(data) {
		return fmt.Errorf("%w: need %d bytes at offset %d of %d", protocol.ErrFrameCorrupt, n, off, len(data))
	}
	return nil
}

func decodeValue(data []byte, off int, v any) (int, error) {
	switch v := v.(type) {
	case *int32:
		if err := need(data, off, 4); err != nil {
			return off, err
		}
		*v, off = protocol.ReadInt32(data, off)
		return off, nil
	case *uint32:
		if err := need(data, off, 4); err != nil {
			return off, err
		}
		*v = binary.BigEndian.Uint32(data[off:])
		return off + 4, nil
	case *int64:
		if err := need(data, off, 8); err != nil {
			return off, err
		}
		*v = int64(binary.BigEndian.Uint64(data[off:]))
		return off + 8, nil
	case *bool:
		if err := need(data, off, 4); err != nil {
			return off, err
		}
		*v = binary.BigEndian.Uint32(data[off:]) != 0
		return off + 4, nil
	case *string:
		s, _, next, err := protocol.ReadEmbeddedString(data, off)
		if err != nil {
			return off, err
		}
		*v = s
		return next, nil
	case **string:
		s, ok, next, err := protocol.ReadEmbeddedString(data, off)
		if err != nil {
			return off, err
		}
		*v = nil
		if ok {
			*v = &s
		}
		return next, nil
	case *[]byte:
		b, next, err := protocol.ReadEmbedded(data, off)
		if err != nil {
			return off, err
		}
		*v = b
		return next, nil
	case encoding.BinaryUnmarshaler:
		b, next, err := protocol.ReadEmbedded(data, off)
		if err != nil {
			return off, err
		}
		return next, v.UnmarshalBinary(b)
	case []any:
		var err error
		for _, elem := range v {
			if off, err = decodeValue(data, off, elem); err != nil {
				return off, err
			}
		}
		return off, nil
	default:
		return off, fmt.Errorf("BinaryCodec: cannot decode into %T", v)
	}
}
