package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/coreos/go-oidc/v3/oidc"
)

// TokenVerifier turns a bearer token into verified claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*OIDCClaims, error)
}

// OIDCVerifier verifies ID tokens issued for this API by an OIDC provider.
type OIDCVerifier struct {
	verifier       *oidc.IDTokenVerifier
	usernameClaim  string
	allowedDomains []string
}

// OIDCClaims represents the claims from an ID token.
type OIDCClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	// Username is read from the configured username claim.
	Username string `json:"-"`
}

// NewOIDCVerifier creates a verifier with provider discovery.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID, usernameClaim string, allowedDomains []string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), usernameClaim, allowedDomains), nil
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, usernameClaim string, allowedDomains []string) *OIDCVerifier {
	if usernameClaim == "" {
		usernameClaim = "preferred_username"
	}
	return &OIDCVerifier{verifier: v, usernameClaim: usernameClaim, allowedDomains: allowedDomains}
}

// Verify checks the token signature, audience and expiry, then the claims.
func (p *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*OIDCClaims, error) {
	idToken, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token: %v", domain.ErrUnauthorized, err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", domain.ErrUnauthorized, err)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", domain.ErrUnauthorized, err)
	}
	claims.Username, _ = raw[p.usernameClaim].(string)

	if err := p.ValidateClaims(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// ValidateClaims checks that the claims name a user and meet the domain
// restriction.
func (p *OIDCVerifier) ValidateClaims(claims *OIDCClaims) error {
	if claims.Username == "" {
		return fmt.Errorf("%w: %s claim is required", domain.ErrUnauthorized, p.usernameClaim)
	}

	if len(p.allowedDomains) > 0 {
		emailParts := strings.Split(claims.Email, "@")
		if len(emailParts) != 2 {
			return fmt.Errorf("%w: invalid email format", domain.ErrForbidden)
		}
		emailDomain := strings.ToLower(emailParts[1])

		allowed := false
		for _, d := range p.allowedDomains {
			if strings.ToLower(d) == emailDomain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: email domain %s is not allowed", domain.ErrForbidden, emailDomain)
		}
	}

	return nil
}
