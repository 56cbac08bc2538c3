package protocol

import (
	"context"
	"maps"
)

// Well-known request metadata keys populated by the transports.
const (
	MetaRemoteAddr = "remote_addr"
	MetaRequestID  = "X-Request-ID"
	MetaUserAgent  = "User-Agent"
	MetaTransport  = "transport"
)

type requestMetaKey struct{}

// RequestMeta carries transport-level information (client address, selected
// headers) alongside a request so middleware can use it without access to
// the underlying connection.
type RequestMeta map[string]string

// ContextWithRequestMeta returns a new context with the request metadata attached.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the request metadata from the context, or nil.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// GetRequestMeta returns a single metadata value, or "" when absent.
func GetRequestMeta(ctx context.Context, key string) string {
	return RequestMetaFromContext(ctx)[key]
}

// SetRequestMeta returns a context whose metadata includes key=value.
// The metadata already in ctx is copied, never mutated.
func SetRequestMeta(ctx context.Context, key, value string) context.Context {
	meta := make(RequestMeta, len(RequestMetaFromContext(ctx))+1)
	maps.Copy(meta, RequestMetaFromContext(ctx))
	meta[key] = value
	return ContextWithRequestMeta(ctx, meta)
}
