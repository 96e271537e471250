package middleware

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"dhcpproxy/message"
	"dhcpproxy/protocol"
)

// DefaultTransientCodes are the DHCP server error codes retried when
// RetryMiddleware is given none: RPC server unavailable, RPC server too
// busy and RPC call failed.
var DefaultTransientCodes = []int32{1722, 1723, 1726}

// RetryMiddleware re-runs an operation that failed with a DhcpServerError
// whose code is in transient, up to maxRetries more times with exponential
// backoff starting at baseDelay. Other errors are returned immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, transient ...int32) Middleware {
	if len(transient) == 0 {
		transient = DefaultTransientCodes
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) ([]byte, error) {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = baseDelay
			b.MaxElapsedTime = 0

			attempt := 0
			return backoff.RetryWithData(func() ([]byte, error) {
				attempt++
				data, err := next(ctx, req)
				if err == nil {
					return data, nil
				}

				var dhcpErr *protocol.DhcpServerError
				if !errors.As(err, &dhcpErr) || !slices.Contains(transient, dhcpErr.Code) {
					return nil, backoff.Permanent(err)
				}

				log.Debug().Err(err).Stringer("op", req.Op).Int("attempt", attempt).Msg("Retrying operation")
				return nil, err
			}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx))
		}
	}
}
