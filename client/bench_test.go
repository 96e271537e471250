package client

import (
	"context"
	"testing"

	"dhcpproxy/codec"
)

func BenchmarkSerialCall(b *testing.B) {
	client := Dial("unix", startProxy(b, 7), WithPoolSize(1))
	defer client.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := client.GetProxyVersion(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	client := Dial("unix", startProxy(b, 7), WithPoolSize(8))
	defer client.Close()

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := client.GetProxyVersion(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkCallJSON(b *testing.B) {
	client := Dial("unix", startProxy(b, 7), WithCodec(codec.CodecTypeJSON))
	defer client.Close()

	args := &Args{A: 1, B: 2}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var reply Reply
		if err := client.Call(opAdd, args, &reply); err != nil {
			b.Fatal(err)
		}
	}
}
