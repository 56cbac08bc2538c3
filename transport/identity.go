package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity describes the authenticated caller. It is forwarded to tool
// handlers as arguments.userInfo.
type Identity map[string]any

// Identity errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// IdentityResolver extracts the caller identity from an HTTP request.
//
// A nil Identity with a nil error means the request is anonymous. An error
// means credentials were presented but could not be accepted; the transport
// answers with an unauthorized error.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(r *http.Request) (Identity, error)

// Resolve calls f(r).
func (f IdentityResolverFunc) Resolve(r *http.Request) (Identity, error) {
	return f(r)
}

type identityContextKey struct{}

// IdentityFromContext returns the caller identity attached by the transport, or nil.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}

// ContextWithIdentity returns a new context with the identity attached.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// HeaderIdentity trusts an identity forwarded by an authenticating proxy
// in the named header. A JSON object is used as-is; any other value becomes
// {"id": value}.
func HeaderIdentity(header string) IdentityResolver {
	return IdentityResolverFunc(func(r *http.Request) (Identity, error) {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			return nil, nil
		}
		if strings.HasPrefix(value, "{") {
			var id Identity
			if err := json.Unmarshal([]byte(value), &id); err != nil {
				return nil, fmt.Errorf("decoding %s header: %w", header, err)
			}
			return id, nil
		}
		return Identity{"id": value}, nil
	})
}

// BearerJWTIdentity verifies an HS256 bearer token with secret and returns
// its claims as the identity.
func BearerJWTIdentity(secret []byte) IdentityResolver {
	return IdentityResolverFunc(func(r *http.Request) (Identity, error) {
		raw, ok := bearerToken(r)
		if !ok {
			return nil, nil
		}

		token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return nil, ErrInvalidToken
		}
		return Identity(claims), nil
	})
}

// StaticTokens accepts bearer tokens from a fixed table.
func StaticTokens(tokens map[string]Identity) IdentityResolver {
	return IdentityResolverFunc(func(r *http.Request) (Identity, error) {
		raw, ok := bearerToken(r)
		if !ok {
			return nil, nil
		}
		id, found := tokens[raw]
		if !found {
			return nil, ErrInvalidToken
		}
		return id, nil
	})
}

// ChainIdentity tries resolvers in order and returns the first identity.
// An error from any resolver stops the chain.
func ChainIdentity(resolvers ...IdentityResolver) IdentityResolver {
	return IdentityResolverFunc(func(r *http.Request) (Identity, error) {
		for _, res := range resolvers {
			id, err := res.Resolve(r)
			if err != nil {
				return nil, err
			}
			if id != nil {
				return id, nil
			}
		}
		return nil, nil
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}
