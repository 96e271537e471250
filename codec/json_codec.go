package codec

import (
	"encoding/json"
)

// JSONCodec encodes structured arguments with encoding/json. It suits
// emulated handlers and tooling; the native proxy speaks BinaryCodec.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
