package server

import (
	"context"
	"fmt"
	"sync"

	"dhcpproxy/codec"
	"dhcpproxy/protocol"
)

// CodeServerUnavailable is the error code reported for an unknown DHCP
// server (RPC_S_SERVER_UNAVAILABLE).
const CodeServerUnavailable int32 = 1722

// ServerVersion is the version a DHCP server reports.
type ServerVersion struct {
	Major int32 `json:"major" yaml:"major" toml:"major"`
	Minor int32 `json:"minor" yaml:"minor" toml:"minor"`
}

// Emulator answers proxy operations from an in-memory table of DHCP
// servers. It stands in for the native proxy in tests and on hosts that
// have no DHCP server to manage. Register it with Server.Register.
type Emulator struct {
	proxyVersion int32
	codec        codec.BinaryCodec

	mu       sync.Mutex
	servers  map[string]ServerVersion
	sessions map[string]int
}

func NewEmulator(proxyVersion int32, servers map[string]ServerVersion) *Emulator {
	e := &Emulator{
		proxyVersion: proxyVersion,
		servers:      make(map[string]ServerVersion, len(servers)),
		sessions:     make(map[string]int),
	}
	for name, v := range servers {
		e.servers[name] = v
	}
	return e
}

func (e *Emulator) GetProxyVersion(ctx context.Context, args []byte) ([]byte, error) {
	return e.codec.Encode(e.proxyVersion)
}

// Connect opens a management session to the named server.
func (e *Emulator) Connect(ctx context.Context, args []byte) ([]byte, error) {
	var name string
	if err := e.codec.Decode(args, &name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.servers[name]; !ok {
		return nil, &protocol.DhcpServerError{
			Code:        CodeServerUnavailable,
			APIFunction: "DhcpGetVersion",
			Description: fmt.Sprintf("The RPC server %s is unavailable.", name),
		}
	}
	e.sessions[name]++
	return nil, nil
}

// Disconnect closes one session to the named server.
func (e *Emulator) Disconnect(ctx context.Context, args []byte) ([]byte, error) {
	var name string
	if err := e.codec.Decode(args, &name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sessions[name] == 0 {
		return nil, &protocol.RemoteError{Message: fmt.Sprintf("no session to %s", name)}
	}
	e.sessions[name]--
	return nil, nil
}

// GetServerVersion reports the major and minor version of a connected
// server.
func (e *Emulator) GetServerVersion(ctx context.Context, args []byte) ([]byte, error) {
	var name string
	if err := e.codec.Decode(args, &name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	v := e.servers[name]
	connected := e.sessions[name] > 0
	e.mu.Unlock()

	if !connected {
		return nil, &protocol.RemoteError{Message: fmt.Sprintf("no session to %s", name)}
	}
	return e.codec.Encode([]any{v.Major, v.Minor})
}
