// Package identity verifies bearer tokens and attaches the resulting
// caller identity to the request context (spec §4.1).
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Anonymous is the identity attached to every request when no provider is
// configured (dev mode, spec §4.1).
const Anonymous = "anonymous"

type contextKey string

const callerContextKey contextKey = "caller_identity"

// Verifier checks a bearer token and returns the subject claim to use as
// the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWKSVerifier validates JWTs against a provider's JSON Web Key Set,
// auto-refreshed in the background.
type JWKSVerifier struct {
	cache    *jwk.Cache
	jwksURL  string
	issuer   string
	audience string
}

// Options configures a JWKSVerifier.
type Options struct {
	JWKSURL  string
	Issuer   string
	Audience string
	// RefreshInterval bounds how often the JWKS is re-fetched; defaults to
	// 15 minutes.
	RefreshInterval time.Duration
}

// New builds a JWKSVerifier, fetching the JWKS once up front to fail fast
// on misconfiguration.
func New(ctx context.Context, opts Options) (*JWKSVerifier, error) {
	if opts.JWKSURL == "" {
		return nil, fmt.Errorf("identity: jwks_url is required")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Minute
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(opts.JWKSURL, jwk.WithMinRefreshInterval(opts.RefreshInterval)); err != nil {
		return nil, fmt.Errorf("identity: register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, opts.JWKSURL); err != nil {
		return nil, fmt.Errorf("identity: initial jwks fetch: %w", err)
	}

	return &JWKSVerifier{
		cache:    cache,
		jwksURL:  opts.JWKSURL,
		issuer:   opts.Issuer,
		audience: opts.Audience,
	}, nil
}

// Verify parses and validates token, returning its subject claim as the
// caller identity.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (string, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return "", fmt.Errorf("identity: fetch jwks: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return "", fmt.Errorf("identity: invalid token: %w", err)
	}
	if tok.Subject() == "" {
		return "", fmt.Errorf("identity: token has no subject claim")
	}
	return tok.Subject(), nil
}

// WithCaller returns a context carrying callerID, retrievable via
// CallerFromContext.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerContextKey, callerID)
}

// CallerFromContext returns the request's caller identity, or Anonymous
// if none was attached.
func CallerFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(callerContextKey).(string); ok && id != "" {
		return id
	}
	return Anonymous
}
