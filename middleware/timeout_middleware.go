package middleware

import (
	"context"
	"time"

	"dhcpproxy/message"
	"dhcpproxy/protocol"
)

type result struct {
	data []byte
	err  error
}

// TimeOutMiddleware fails an operation that has not completed within
// timeout. The handler keeps running with a cancelled context.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				data, err := next(ctx, req)
				done <- result{data: data, err: err}
			}()

			select {
			case r := <-done:
				return r.data, r.err
			case <-ctx.Done():
				return nil, &protocol.RemoteError{Message: "request timed out"}
			}
		}
	}
}
