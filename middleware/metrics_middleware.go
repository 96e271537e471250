package middleware

import (
	"context"
	"time"

	"dhcpproxy/message"
	"dhcpproxy/metrics"
)

// MetricsMiddleware records each operation's latency and outcome.
func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) ([]byte, error) {
			start := time.Now()
			data, err := next(ctx, req)
			m.Observe(req.Op.String(), start, err)
			return data, err
		}
	}
}
