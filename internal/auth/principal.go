// Package auth resolves the caller of an API request to a principal, either
// from an API key or from an OIDC bearer token.
package auth

import "context"

// Method is how a principal authenticated.
type Method string

const (
	MethodAPIKey    Method = "api_key"
	MethodBootstrap Method = "bootstrap"
	MethodOIDC      Method = "oidc"
)

// Principal is an authenticated caller. Name is the identity tokens and
// course mappings are recorded under.
type Principal struct {
	Name   string `json:"name"`
	Method Method `json:"method"`
	KeyID  string `json:"key_id,omitempty"`
	Admin  bool   `json:"admin"`
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
