package transport

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/openapi-mcp/protocol"
)

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", protocol.MetaRequestID}
)

const defaultCORSMaxAge = 86400

// CORSConfig configures CORS for browser-based MCP clients.
type CORSConfig struct {
	// AllowOrigins lists exact origins, or "*" for any origin.
	AllowOrigins []string

	// AllowMethods defaults to GET, POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders defaults to Content-Type, Authorization, X-Request-ID.
	// Add the header read by HeaderIdentity when a browser sends it.
	AllowHeaders []string

	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Default: 86400.
	MaxAge int
}

// DefaultCORSConfig returns a permissive configuration suitable for development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: slices.Clone(defaultCORSMethods),
		AllowHeaders: slices.Clone(defaultCORSHeaders),
		MaxAge:       defaultCORSMaxAge,
	}
}

// CORSHandler wraps next with CORS headers and answers preflight requests
// from allowed origins with 204.
func CORSHandler(config CORSConfig, next http.Handler) http.Handler {
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = defaultCORSMethods
	}
	if len(config.AllowHeaders) == 0 {
		config.AllowHeaders = defaultCORSHeaders
	}
	if config.MaxAge == 0 {
		config.MaxAge = defaultCORSMaxAge
	}

	allowAll := slices.Contains(config.AllowOrigins, "*")
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		var allowOrigin string
		switch {
		case allowAll && config.AllowCredentials && origin != "":
			// A credentialed response may not use the wildcard.
			allowOrigin = origin
		case allowAll:
			allowOrigin = "*"
		case origin != "" && slices.Contains(config.AllowOrigins, origin):
			allowOrigin = origin
		}

		if allowOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			w.Header().Add("Vary", "Origin")
		}
		if config.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if config.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if expose != "" {
			w.Header().Set("Access-Control-Expose-Headers", expose)
		}
		next.ServeHTTP(w, r)
	})
}

// WithCORS configures CORS for the HTTP transport.
func WithCORS(config CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}

// WithDefaultCORS enables CORS with DefaultCORSConfig.
func WithDefaultCORS() HTTPOption {
	return WithCORS(DefaultCORSConfig())
}
