package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dhcpproxy/message"
	"dhcpproxy/protocol"
)

type serverVersion struct {
	Major int32 `json:"major"`
	Minor int32 `json:"minor"`
}

func TestJSONCodec(t *testing.T) {
	c := GetCodec(CodecTypeJSON)
	assert.Equal(t, CodecTypeJSON, c.Type())

	data, err := c.Encode(&serverVersion{Major: 5, Minor: 6})
	require.NoError(t, err)
	assert.JSONEq(t, `{"major":5,"minor":6}`, string(data))

	var got serverVersion
	require.NoError(t, c.Decode(data, &got))
	assert.Equal(t, serverVersion{Major: 5, Minor: 6}, got)
}

func TestBinaryCodecLayout(t *testing.T) {
	c := GetCodec(CodecTypeBinary)
	assert.Equal(t, CodecTypeBinary, c.Type())

	data, err := c.Encode([]any{int32(7), "ab", true, (*string)(nil)})
	require.NoError(t, err)

	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x07,
		0x00, 0x00, 0x00, 0x02, 'a', 'b',
		0x00, 0x00, 0x00, 0x01,
		0x80, 0x00, 0x00, 0x00,
	}, data)
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	c := &BinaryCodec{}
	name := "dhcp01.example.com"

	data, err := c.Encode([]any{
		int32(-3),
		uint32(0xdeadbeef),
		int64(1) << 40,
		false,
		&name,
		[]byte{1, 2, 3},
		&message.Request{Op: message.OpConnect, Args: []byte("x")},
	})
	require.NoError(t, err)

	var (
		i32  int32
		u32  uint32
		i64  int64
		flag bool
		str  *string
		raw  []byte
		req  message.Request
	)
	require.NoError(t, c.Decode(data, []any{&i32, &u32, &i64, &flag, &str, &raw, &req}))

	assert.Equal(t, int32(-3), i32)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	assert.Equal(t, int64(1)<<40, i64)
	assert.False(t, flag)
	require.NotNil(t, str)
	assert.Equal(t, name, *str)
	assert.Equal(t, []byte{1, 2, 3}, raw)
	assert.Equal(t, message.OpConnect, req.Op)
	assert.Equal(t, []byte("x"), req.Args)
}

func TestBinaryCodecNullString(t *testing.T) {
	c := &BinaryCodec{}

	data, err := c.Encode(nil)
	require.NoError(t, err)

	var ptr *string
	require.NoError(t, c.Decode(data, &ptr))
	assert.Nil(t, ptr)

	var s string
	require.NoError(t, c.Decode(data, &s))
	assert.Empty(t, s)
}

func TestBinaryCodecErrors(t *testing.T) {
	c := &BinaryCodec{}

	_, err := c.Encode(3.14)
	assert.Error(t, err)

	var v int32
	assert.ErrorIs(t, c.Decode([]byte{0, 1}, &v), protocol.ErrFrameCorrupt)
	assert.ErrorIs(t, c.Decode([]byte{0, 0, 0, 1, 9}, &v), protocol.ErrFrameCorrupt)

	var f float64
	assert.Error(t, c.Decode([]byte{0, 0, 0, 0}, &f))
}

func TestParseCodecType(t *testing.T) {
	ct, err := ParseCodecType("json")
	require.NoError(t, err)
	assert.Equal(t, CodecTypeJSON, ct)

	ct, err = ParseCodecType("")
	require.NoError(t, err)
	assert.Equal(t, CodecTypeBinary, ct)

	_, err = ParseCodecType("xml")
	assert.Error(t, err)
}
