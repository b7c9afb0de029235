package ctxutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

type serverKey struct{}

// WithServer remembers the server context inside per-connection contexts.
func WithServer(conn context.Context, server context.Context) context.Context {
	return context.WithValue(conn, serverKey{}, server)
}

// Server returns the context stored by WithServer, or ctx itself.
func Server(ctx context.Context) context.Context {
	if server, ok := ctx.Value(serverKey{}).(context.Context); ok {
		return server
	}
	return ctx
}

// CancelReason tells apart a request dropped by its client from one cut by shutdown.
func CancelReason(ctx context.Context) string {
	if ctx.Err() == nil {
		return ""
	}
	if Server(ctx).Err() != nil {
		return "shutdown"
	}
	return "client gone"
}

func HandleInterruptSignal(ctx context.Context) context.Context {
	ctx, _ = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx
}
