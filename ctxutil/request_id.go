package ctxutil

import "context"

type requestIdKey struct{}

func SetRequestId(parent context.Context, requestId string) context.Context {
	return context.WithValue(parent, requestIdKey{}, requestId)
}

func RequestId(ctx context.Context) string {
	if v, ok := ctx.Value(requestIdKey{}).(string); ok {
		return v
	}
	return ""
}
