// Package middleware provides request/response middleware for MCP servers.
//
// Middleware wraps the next handler in the chain, allowing pre- and
// post-processing of requests:
//
//	chain := middleware.Chain(
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
//	handler := chain(baseHandler)
//
// # Available Middleware
//
//   - Recover: converts panics into internal errors
//   - RequestID: injects request IDs (forwarded X-Request-ID or a UUID)
//   - Logging: logs method, tool, duration and error code
//   - RateLimit, RateLimitByTool, RateLimitByClient: token bucket limits
//   - SizeLimit: rejects oversized params
//   - OTel: OpenTelemetry spans and request metrics
//
// # Logging
//
// Logger is the logging seam used across the module. NewSlogLogger backs it
// with log/slog:
//
//	logger := middleware.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
//	stack := middleware.DefaultStack(logger)
package middleware
