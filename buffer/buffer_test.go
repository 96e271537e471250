package buffer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

// The growth formula adds n mod 1024 instead of rounding up to a multiple
// of 1024; these values pin that behaviour.
func TestGrowSize(t *testing.T) {
	cases := map[int]int{
		0:    0,
		8:    16,
		1023: 2046,
		1024: 1024,
		1025: 1026,
		4000: 4928,
	}

	for n, want := range cases {
		assert.Equal(t, want, GrowSize(n), "GrowSize(%d)", n)
	}
}

func TestGrowSizeDoesNotWrap(t *testing.T) {
	assert.Equal(t, math.MaxInt, GrowSize(math.MaxInt))
	assert.Positive(t, GrowSize(math.MaxInt-1))
	assert.GreaterOrEqual(t, GrowSize(math.MaxInt-1), math.MaxInt-1)
}

func TestEnsureCapacity(t *testing.T) {
	buf := make([]byte, 64)

	same := EnsureCapacity(buf, 64)
	assert.Same(t, &buf[0], &same[0], "no reallocation when large enough")

	grown := EnsureCapacity(buf, 1025)
	assert.Len(t, grown, 1026)
}

func TestEnsureCapacityPreserve(t *testing.T) {
	for _, c := range []int{1, 8, 100, 1024, 3000} {
		for _, m := range []int{c + 1, 2 * c, c + 5000} {
			buf := fill(c, 7)
			orig := append([]byte(nil), buf...)

			grown, scratch := EnsureCapacityPreserve(buf, nil, m)

			require.GreaterOrEqual(t, len(grown), m)
			assert.Equal(t, orig, grown[:c], "c=%d m=%d", c, m)
			assert.GreaterOrEqual(t, len(scratch), c)
		}
	}
}

func TestEnsureCapacityPreserveNoop(t *testing.T) {
	buf := fill(32, 1)
	scratch := make([]byte, 4)

	got, gotScratch := EnsureCapacityPreserve(buf, scratch, 16)
	assert.Same(t, &buf[0], &got[0])
	assert.Len(t, gotScratch, 4)
}

func TestShrink(t *testing.T) {
	assert.Len(t, Shrink(make([]byte, 100), 200), 100)
	assert.Len(t, Shrink(make([]byte, 100), 40), 40)
}

func TestShrinkPreserve(t *testing.T) {
	buf := fill(4096, 3)

	got, scratch := ShrinkPreserve(buf, 10, 1024, nil)
	require.Len(t, got, 1024)
	assert.Equal(t, buf[:10], got[:10])
	assert.GreaterOrEqual(t, len(scratch), 10)

	// live data does not fit: untouched
	got, _ = ShrinkPreserve(buf, 2000, 1024, nil)
	assert.Len(t, got, 4096)

	// already small enough: untouched
	got, _ = ShrinkPreserve(buf, 10, 8192, nil)
	assert.Len(t, got, 4096)
}

func TestReindexRemainder(t *testing.T) {
	cases := []struct {
		name      string
		size      int
		offset    int
		remainder int
	}{
		{"disjoint", 64, 40, 10},
		{"adjacent", 64, 10, 10},
		{"overlapping", 64, 4, 30},
		{"one byte step", 64, 1, 63},
		{"tail", 2048, 1500, 548},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := fill(tc.size, 0)
			want := append([]byte(nil), buf[tc.offset:tc.offset+tc.remainder]...)

			off, scratch := ReindexRemainder(buf, tc.offset, tc.remainder, nil)

			assert.Equal(t, tc.remainder, off)
			assert.Equal(t, want, buf[:tc.remainder])
			if tc.offset > tc.remainder {
				assert.Nil(t, scratch)
			} else {
				assert.GreaterOrEqual(t, len(scratch), tc.remainder)
			}
		})
	}
}

func TestReindexRemainderEmpty(t *testing.T) {
	buf := fill(16, 0)

	off, _ := ReindexRemainder(buf, 8, 0, nil)
	assert.Equal(t, 0, off)
	assert.Equal(t, fill(16, 0), buf)
}

func TestNew(t *testing.T) {
	b := New(512)
	assert.Len(t, b.Request, 512)
	assert.Len(t, b.Response, 512)
	assert.Nil(t, b.Scratch)
}
