package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"dhcpproxy/message"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) ([]byte, error) {
			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				log.Warn().Err(err).Stringer("op", req.Op).Dur("duration", duration).Msg("Operation failed")
				return result, err
			}

			log.Info().Stringer("op", req.Op).Dur("duration", duration).Int("result_bytes", len(result)).Msg("Operation served")
			return result, nil
		}
	}
}
