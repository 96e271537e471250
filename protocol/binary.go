package protocol

import "encoding/binary"

// WriteInt32 writes v at buf[off:off+4] in network byte order and returns
// the offset following it. The caller sizes buf beforehand; an out of range
// offset panics.
func WriteInt32(buf []byte, off int, v int32) int {
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
	return off + 4
}

// ReadInt32 is the inverse of WriteInt32.
func ReadInt32(buf []byte, off int) (int32, int) {
	return int32(binary.BigEndian.Uint32(buf[off : off+4])), off + 4
}
