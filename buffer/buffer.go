// Package buffer manages the reusable byte buffers a transport keeps per
// connection.
//
// A transport writes every request frame into the same request buffer and
// reads every response into the same response buffer, so a long sequence of
// invocations allocates only when a frame outgrows what is already held.
// The scratch buffer is temporary storage used while resizing or relocating
// live bytes.
//
// The functions here are pure with respect to I/O: they take a buffer and
// return the (possibly reallocated) buffer. The length of a slice is its
// capacity in the sense used throughout this package.
package buffer

import "math"

// Quantum is the allocation granularity used by GrowSize.
const Quantum = 1024

// Buffers is the buffer set owned by one connection. It is not safe for
// concurrent use; the owning transport serializes access.
type Buffers struct {
	Request  []byte
	Response []byte
	Scratch  []byte
}

// New returns a buffer set with request and response buffers of size bytes.
func New(size int) *Buffers {
	return &Buffers{
		Request:  make([]byte, size),
		Response: make([]byte, size),
	}
}

// GrowSize returns the size allocated when n bytes are needed: n plus n
// modulo Quantum. For n = 1025 this is 1026, not 2048. Near math.MaxInt
// the padding is dropped rather than wrapping.
func GrowSize(n int) int {
	extra := n % Quantum
	if n > math.MaxInt-extra {
		return n
	}
	return n + extra
}

// EnsureCapacity returns buf when it already holds minLength bytes, otherwise
// a new buffer of GrowSize(minLength) bytes. Contents are not preserved.
func EnsureCapacity(buf []byte, minLength int) []byte {
	if len(buf) >= minLength {
		return buf
	}
	return make([]byte, GrowSize(minLength))
}

// EnsureCapacityPreserve is EnsureCapacity for a buffer holding unconsumed
// bytes. The whole of buf is staged through scratch and copied into the new
// buffer. It returns the new buffer and the scratch buffer, which may also
// have been grown.
func EnsureCapacityPreserve(buf, scratch []byte, minLength int) ([]byte, []byte) {
	if len(buf) >= minLength {
		return buf, scratch
	}

	live := len(buf)
	scratch = EnsureCapacity(scratch, live)
	copy(scratch, buf)

	buf = make([]byte, GrowSize(minLength))
	copy(buf, scratch[:live])
	return buf, scratch
}

// Shrink reallocates buf to exactly maxLength bytes when it is larger.
// Contents are discarded, so it is only used on buffers known to be empty.
func Shrink(buf []byte, maxLength int) []byte {
	if len(buf) <= maxLength {
		return buf
	}
	return make([]byte, maxLength)
}

// ShrinkPreserve reallocates buf to maxLength bytes when
// live < maxLength < len(buf), keeping the first live bytes. It returns the
// buffer and the scratch buffer.
func ShrinkPreserve(buf []byte, live, maxLength int, scratch []byte) ([]byte, []byte) {
	if live >= maxLength || maxLength >= len(buf) {
		return buf, scratch
	}

	scratch = EnsureCapacity(scratch, live)
	copy(scratch, buf[:live])

	buf = make([]byte, maxLength)
	copy(buf, scratch[:live])
	return buf, scratch
}

// ReindexRemainder moves the remainder bytes found at buf[offset:offset+remainder]
// to the start of buf, so the next read can append after them. It returns the
// new read offset, which equals remainder, and the scratch buffer.
//
// When offset > remainder the two ranges cannot overlap and the bytes are
// copied in place; otherwise they pivot through scratch.
func ReindexRemainder(buf []byte, offset, remainder int, scratch []byte) (int, []byte) {
	if remainder <= 0 {
		return 0, scratch
	}
	if offset == 0 {
		return remainder, scratch
	}

	if offset > remainder {
		copy(buf, buf[offset:offset+remainder])
		return remainder, scratch
	}

	scratch = EnsureCapacity(scratch, remainder)
	copy(scratch, buf[offset:offset+remainder])
	copy(buf, scratch[:remainder])
	return remainder, scratch
}
