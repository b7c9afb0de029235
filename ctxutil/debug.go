package ctxutil

import (
	"context"
	"os"
)

// DebugEnv enables debug logging when set to anything but "" or "0".
const DebugEnv = "CHUNKGATE_DEBUG"

type debugKey struct{}

func SetDebugAuto(parent context.Context) context.Context {
	v, ok := os.LookupEnv(DebugEnv)
	return SetDebug(parent, ok && v != "" && v != "0")
}

func SetDebug(parent context.Context, debug bool) context.Context {
	return context.WithValue(parent, debugKey{}, debug)
}

func IsDebug(ctx context.Context) bool {
	debug, _ := ctx.Value(debugKey{}).(bool)
	return debug
}
