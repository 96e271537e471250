package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"dhcpproxy/message"
	"dhcpproxy/protocol"
)

// RateLimitMiddleware rejects operations beyond r per second, allowing
// bursts of burst, with a transport exception.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) ([]byte, error) {
			if !limiter.Allow() {
				return nil, &protocol.RemoteTransportError{Message: "rate limit exceeded"}
			}
			return next(ctx, req)
		}
	}
}
