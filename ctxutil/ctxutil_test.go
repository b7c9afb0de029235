package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebug(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsDebug(ctx))
	assert.True(t, IsDebug(SetDebug(ctx, true)))
	assert.False(t, IsDebug(SetDebug(SetDebug(ctx, true), false)))

	t.Setenv(DebugEnv, "1")
	assert.True(t, IsDebug(SetDebugAuto(ctx)))
	t.Setenv(DebugEnv, "0")
	assert.False(t, IsDebug(SetDebugAuto(ctx)))
}

func TestRequestId(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RequestId(ctx))
	assert.Equal(t, "abc", RequestId(SetRequestId(ctx, "abc")))
}

func TestCancelReason(t *testing.T) {
	server, stop := context.WithCancel(context.Background())
	defer stop()

	conn, drop := context.WithCancel(WithServer(context.Background(), server))
	assert.Equal(t, "", CancelReason(conn))
	assert.Equal(t, server, Server(conn))
	drop()
	assert.Equal(t, "client gone", CancelReason(conn))

	conn2, drop2 := context.WithCancel(WithServer(server, server))
	defer drop2()
	stop()
	assert.Equal(t, "shutdown", CancelReason(conn2))
}
