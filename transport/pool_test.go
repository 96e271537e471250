package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsTransports(t *testing.T) {
	proxy := &fakeProxy{serve: echo}
	pool := NewPool(proxy.dial, 2)
	defer pool.Close()

	a, err := pool.Get()
	require.NoError(t, err)
	b, err := pool.Get()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	got := make(chan *ClientTransport)
	go func() {
		c, err := pool.Get()
		assert.NoError(t, err)
		got <- c
	}()

	pool.Put(a)
	assert.Same(t, a, <-got)
	pool.Put(a)
	pool.Put(b)
}

func TestPoolInvokeConcurrent(t *testing.T) {
	proxy := &fakeProxy{serve: echo}
	pool := NewPool(proxy.dial, 3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := pool.Invoke([]byte{byte(i)})
			if assert.NoError(t, err) {
				assert.Equal(t, []byte{byte(i)}, resp)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, proxy.dials.Load(), int32(3))

	require.NoError(t, pool.Close())
	_, err := pool.Get()
	assert.ErrorIs(t, err, ErrPoolClosed)
}
