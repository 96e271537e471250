package client

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"dhcpproxy/codec"
	"dhcpproxy/loadbalance"
	"dhcpproxy/message"
	"dhcpproxy/metrics"
	"dhcpproxy/protocol"
	"dhcpproxy/registry"
	"dhcpproxy/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

// opAdd is served by the test servers only.
const opAdd message.OpCode = 100

func add(ctx context.Context, req *message.Request) ([]byte, error) {
	var args Args
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return nil, err
	}
	return json.Marshal(&Reply{Result: args.A + args.B})
}

// startProxy runs an emulating proxy on a unix socket.
func startProxy(tb testing.TB, proxyVersion int32) string {
	tb.Helper()

	svr := server.NewServer()
	require.NoError(tb, svr.Register(server.NewEmulator(proxyVersion, map[string]server.ServerVersion{
		"dhcp01": {Major: 10, Minor: 2},
	})))
	svr.Handle(opAdd, add)

	path := filepath.Join(tb.TempDir(), "proxy.sock")
	errc := make(chan error, 1)
	go func() { errc <- svr.Serve("unix", path, "", nil) }()

	select {
	case <-svr.Ready():
	case err := <-errc:
		tb.Fatalf("Serve: %v", err)
	}

	tb.Cleanup(func() {
		assert.NoError(tb, svr.Shutdown(time.Second))
		assert.NoError(tb, <-errc)
	})
	return path
}

func TestClientProxyOperations(t *testing.T) {
	path := startProxy(t, 7)

	client := Dial("unix", path)
	defer client.Close()

	ctx := context.Background()

	version, err := client.GetProxyVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(7), version)

	require.NoError(t, client.Connect(ctx, "dhcp01"))

	major, minor, err := client.GetServerVersion(ctx, "dhcp01")
	require.NoError(t, err)
	assert.Equal(t, int32(10), major)
	assert.Equal(t, int32(2), minor)

	require.NoError(t, client.Disconnect(ctx, "dhcp01"))
}

func TestClientDhcpServerError(t *testing.T) {
	path := startProxy(t, 7)

	client := Dial("unix", path)
	defer client.Close()

	err := client.Connect(context.Background(), "dhcp99")

	var dhcpErr *protocol.DhcpServerError
	require.True(t, errors.As(err, &dhcpErr), "got %v", err)
	assert.Equal(t, server.CodeServerUnavailable, dhcpErr.Code)
	assert.Equal(t, "DhcpGetVersion", dhcpErr.APIFunction)

	// the failed call leaves the client usable
	_, err = client.GetProxyVersion(context.Background())
	assert.NoError(t, err)
}

func TestClientCallJSON(t *testing.T) {
	path := startProxy(t, 7)

	client := Dial("unix", path, WithCodec(codec.CodecTypeJSON))
	defer client.Close()

	reply := &Reply{}
	require.NoError(t, client.Call(opAdd, &Args{A: 1, B: 2}, reply))
	assert.Equal(t, 3, reply.Result)

	reply2 := &Reply{}
	require.NoError(t, client.Call(opAdd, &Args{A: 10, B: 20}, reply2))
	assert.Equal(t, 30, reply2.Result)
}

func TestClientUnknownOperation(t *testing.T) {
	path := startProxy(t, 7)

	client := Dial("unix", path)
	defer client.Close()

	err := client.Call(message.OpCode(55), nil, nil)
	var remoteErr *protocol.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Contains(t, remoteErr.Message, "unknown operation")
}

func TestClientBalancesAcrossInstances(t *testing.T) {
	path1 := startProxy(t, 1)
	path2 := startProxy(t, 2)

	reg := registry.NewStaticRegistry(DefaultServiceName,
		registry.ProxyInstance{Network: "unix", Addr: path1, Weight: 1},
		registry.ProxyInstance{Network: "unix", Addr: path2, Weight: 1},
	)
	client := NewClient(reg, &loadbalance.RoundRobinBalancer{}, WithPoolSize(1))
	defer client.Close()

	seen := map[int32]bool{}
	for i := 0; i < 4; i++ {
		v, err := client.GetProxyVersion(context.Background())
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Equal(t, map[int32]bool{1: true, 2: true}, seen)

	// a departed instance loses its pool
	require.NoError(t, reg.Deregister(DefaultServiceName, path2))
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		_, ok := client.pools[path2]
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	v, err := client.GetProxyVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
}

func TestClientNoInstances(t *testing.T) {
	client := NewClient(registry.NewStaticRegistry(DefaultServiceName), &loadbalance.RoundRobinBalancer{})
	defer client.Close()

	_, err := client.GetProxyVersion(context.Background())
	assert.ErrorIs(t, err, loadbalance.ErrNoInstances)
}

func TestClientClosed(t *testing.T) {
	path := startProxy(t, 7)

	client := Dial("unix", path)
	_, err := client.GetProxyVersion(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.GetProxyVersion(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientCancelledContext(t *testing.T) {
	client := Dial("unix", filepath.Join(t.TempDir(), "absent.sock"))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetProxyVersion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientTracesAndMeasures(t *testing.T) {
	path := startProxy(t, 7)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "client")
	require.NoError(t, err)

	client := Dial("unix", path, WithTracerProvider(tp), WithMetrics(m))
	defer client.Close()

	_, err = client.GetProxyVersion(context.Background())
	require.NoError(t, err)
	require.Error(t, client.Connect(context.Background(), "dhcp99"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "dhcpproxy GetProxyVersion", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "dhcpproxy Connect", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "dhcp_proxy_client_calls_total"))
}
