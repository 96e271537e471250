//go:build windows

package server

import (
	"net"

	"github.com/Microsoft/go-winio"
)

const pipeBufferSize = 64 * 1024

// listenPipe creates a named pipe such as \\.\pipe\DhcpProxy in byte mode.
func listenPipe(path string) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
}
