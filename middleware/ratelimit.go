package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

// KeyFunc extracts the bucket a request is counted against.
type KeyFunc func(ctx context.Context, req *protocol.Request) string

// RateLimitOption configures the rate limiter.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	keyFunc     KeyFunc
	logger      Logger
	skipMethods map[string]bool
}

// WithRateLimitKeyFunc sets a function to extract a rate limit key from requests.
func WithRateLimitKeyFunc(fn KeyFunc) RateLimitOption {
	return func(o *rateLimitConfig) {
		o.keyFunc = fn
	}
}

// WithRateLimitLogger sets the logger for rate limit events.
func WithRateLimitLogger(l Logger) RateLimitOption {
	return func(o *rateLimitConfig) {
		o.logger = l
	}
}

// WithRateLimitSkipMethods exempts methods from limiting.
func WithRateLimitSkipMethods(methods ...string) RateLimitOption {
	return func(o *rateLimitConfig) {
		for _, m := range methods {
			o.skipMethods[m] = true
		}
	}
}

// RateLimit returns middleware that limits request rate using a token bucket.
// rate is the number of requests per second; burst allows short bursts above it.
// Rejected requests fail with CodeRateLimited.
func RateLimit(rate int, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc:     func(context.Context, *protocol.Request) string { return "global" },
		logger:      NopLogger{},
		skipMethods: map[string]bool{protocol.MethodInitialized: true},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if cfg.skipMethods[req.Method] {
				return next(ctx, req)
			}

			key := cfg.keyFunc(ctx, req)
			if !limiter.Allow(ctx, key) {
				cfg.logger.Warn("rate limit exceeded",
					F("method", req.Method),
					F("key", key),
				)
				return nil, protocol.NewRateLimited("rate limit exceeded")
			}

			return next(ctx, req)
		}
	}
}

// Bucket keys used by RateLimitByTool for names it does not count separately.
const (
	UnknownToolKey   = "tool:unknown"
	UnknownMethodKey = "method:unknown"
)

var limitedMethods = map[string]bool{
	protocol.MethodInitialize: true,
	protocol.MethodToolsList:  true,
	protocol.MethodToolsCall:  true,
	protocol.MethodPing:       true,
}

// RateLimitByTool applies a separate bucket to every tool for which known
// reports true; all other tool names share UnknownToolKey, so made-up names
// cannot grow the limiter. A nil known counts every tool call against
// UnknownToolKey. Other methods use a bucket named after the method, and
// unrecognized methods share UnknownMethodKey.
func RateLimitByTool(rate int, burst int, known func(tool string) bool, opts ...RateLimitOption) Middleware {
	allOpts := append([]RateLimitOption{
		WithRateLimitKeyFunc(func(_ context.Context, req *protocol.Request) string {
			if req.Method == protocol.MethodToolsCall {
				if tool := ToolName(req); tool != "" && known != nil && known(tool) {
					return "tool:" + tool
				}
				return UnknownToolKey
			}
			if limitedMethods[req.Method] {
				return req.Method
			}
			return UnknownMethodKey
		}),
	}, opts...)
	return RateLimit(rate, burst, allOpts...)
}

// RateLimitByClient applies a separate bucket to every client address
// reported by the transport.
func RateLimitByClient(rate int, burst int, opts ...RateLimitOption) Middleware {
	allOpts := append([]RateLimitOption{
		WithRateLimitKeyFunc(func(ctx context.Context, _ *protocol.Request) string {
			if addr := protocol.GetRequestMeta(ctx, protocol.MetaRemoteAddr); addr != "" {
				return addr
			}
			return "unknown"
		}),
	}, opts...)
	return RateLimit(rate, burst, allOpts...)
}
