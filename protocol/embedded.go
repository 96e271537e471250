package protocol

import (
	"fmt"
	"math"
)

// NullLength is the length prefix of an absent embedded field. A negative
// length cannot describe real data, so it doubles as the null marker.
const NullLength int32 = math.MinInt32

// EmbeddedSize returns the number of bytes WriteEmbedded needs for value.
func EmbeddedSize(value []byte) int {
	return 4 + len(value)
}

// WriteEmbedded writes value as a length-prefixed field and returns the offset
// following it. A nil value is written as NullLength with no data bytes;
// an empty non-nil value is written as length 0.
//
// len(value) must be below math.MaxInt32.
func WriteEmbedded(buf []byte, off int, value []byte) int {
	if value == nil {
		return WriteInt32(buf, off, NullLength)
	}

	off = WriteInt32(buf, off, int32(len(value)))
	return off + copy(buf[off:], value)
}

// ReadEmbedded reads a field written by WriteEmbedded. It returns a nil slice
// for an absent field. The returned slice is a copy and does not alias buf.
func ReadEmbedded(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, off, fmt.Errorf("%w: embedded length at offset %d exceeds %d bytes", ErrFrameCorrupt, off, len(buf))
	}

	length, next := ReadInt32(buf, off)
	if length == NullLength {
		return nil, next, nil
	}
	if length < 0 || next+int(length) > len(buf) {
		return nil, off, fmt.Errorf("%w: embedded field of %d bytes at offset %d exceeds %d bytes", ErrFrameCorrupt, length, off, len(buf))
	}

	value := make([]byte, length)
	copy(value, buf[next:next+int(length)])
	return value, next + int(length), nil
}

// ReadEmbeddedString reads an embedded field as UTF-8 text. An absent field
// yields ok == false.
func ReadEmbeddedString(buf []byte, off int) (s string, ok bool, next int, err error) {
	value, next, err := ReadEmbedded(buf, off)
	if err != nil {
		return "", false, next, err
	}
	if value == nil {
		return "", false, next, nil
	}
	return string(value), true, next, nil
}
