// Package requestcontext carries request-scoped values between middleware and
// services without importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests pin the clock with requestcontext.WithTime.
package requestcontext

import (
	"context"
	"time"
)

type key int

const (
	requestIDKey key = iota
	requestTimeKey
	clientIPKey
	userAgentKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

func RequestID(ctx context.Context) string {
	id, _ := value[string](ctx, requestIDKey)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ClientIP is the remote address recorded by the metadata middleware.
func ClientIP(ctx context.Context) string {
	ip, _ := value[string](ctx, clientIPKey)
	return ip
}

// UserAgent is the raw User-Agent header.
func UserAgent(ctx context.Context) string {
	ua, _ := value[string](ctx, userAgentKey)
	return ua
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// Now returns the time pinned for this request, or the wall clock outside a
// request (workers, CLI). Ingestion reads it once so the skew check and the
// stored timestamps agree.
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
