package message

import (
	"bytes"
	"errors"
	"testing"

	"dhcpproxy/protocol"
)

func TestRequestMarshal(t *testing.T) {
	req := &Request{Op: OpGetServerVersion, Args: []byte("dhcp01")}

	data, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	want := append([]byte{0, 0, 0, 3}, "dhcp01"...)
	if !bytes.Equal(data, want) {
		t.Fatalf("got % x, want % x", data, want)
	}

	var got Request
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if got.Op != OpGetServerVersion || string(got.Args) != "dhcp01" {
		t.Errorf("decoded %+v", got)
	}
}

func TestGetProxyVersionRequest(t *testing.T) {
	data, _ := (&Request{Op: OpGetProxyVersion}).MarshalBinary()
	if !bytes.Equal(data, []byte{0, 0, 0, 0}) {
		t.Fatalf("got % x", data)
	}
}

func TestRequestUnmarshalShort(t *testing.T) {
	var req Request
	err := req.UnmarshalBinary([]byte{0, 0, 1})
	if !errors.Is(err, protocol.ErrFrameCorrupt) {
		t.Fatalf("expected ErrFrameCorrupt, got %v", err)
	}
}

func TestOpCodeString(t *testing.T) {
	cases := map[OpCode]string{
		OpGetProxyVersion:  "GetProxyVersion",
		OpConnect:          "Connect",
		OpDisconnect:       "Disconnect",
		OpGetServerVersion: "GetServerVersion",
		OpCode(42):         "Op(42)",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("OpCode(%d).String() = %q, want %q", int32(op), got, want)
		}
	}
}

func TestParseOpCode(t *testing.T) {
	for _, op := range []OpCode{OpGetProxyVersion, OpConnect, OpDisconnect, OpGetServerVersion} {
		got, ok := ParseOpCode(op.String())
		if !ok || got != op {
			t.Errorf("ParseOpCode(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if _, ok := ParseOpCode("Op(42)"); ok {
		t.Error("unexpected match for unknown name")
	}
}
