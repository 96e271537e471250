// Package middleware wraps server operation handlers.
//
// A handler returns the result bytes of an operation or an error. Errors of
// type *protocol.DhcpServerError and *protocol.RemoteTransportError reach the
// client as their own exception instructions; anything else becomes a
// generic exception.
package middleware

import (
	"context"

	"dhcpproxy/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
