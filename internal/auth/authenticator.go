package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/storage"
	"go.uber.org/zap"
)

// BootstrapPrincipal names the caller using the bootstrap key.
const BootstrapPrincipal = "bootstrap"

// Authenticator resolves bearer credentials to principals.
type Authenticator struct {
	store        storage.Storage
	bootstrapKey string
	verifier     TokenVerifier
	isAdmin      func(string) bool
	logger       *zap.Logger
}

// NewAuthenticator creates an Authenticator. verifier may be nil when OIDC
// is disabled. isAdmin decides which principal names are admins.
func NewAuthenticator(store storage.Storage, bootstrapKey string, verifier TokenVerifier, isAdmin func(string) bool, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Authenticator{
		store:        store,
		bootstrapKey: bootstrapKey,
		verifier:     verifier,
		isAdmin:      isAdmin,
		logger:       logger,
	}
}

// Authenticate resolves token. API keys are tried first, then the
// bootstrap key while no API key exists, then OIDC.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty bearer token", domain.ErrUnauthorized)
	}

	if looksLikeAPIKey(token) {
		return a.apiKey(ctx, token)
	}

	if a.bootstrapKey != "" {
		keyCount, err := a.store.CountAPIKeys(ctx)
		if err != nil {
			return nil, err
		}
		if keyCount == 0 && subtle.ConstantTimeCompare([]byte(token), []byte(a.bootstrapKey)) == 1 {
			return &Principal{Name: BootstrapPrincipal, Method: MethodBootstrap, KeyID: "bootstrap", Admin: true}, nil
		}
	}

	if a.verifier == nil {
		return nil, domain.ErrInvalidAPIKey
	}
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Principal{Name: claims.Username, Method: MethodOIDC, Admin: a.isAdmin(claims.Username)}, nil
}

func (a *Authenticator) apiKey(ctx context.Context, token string) (*Principal, error) {
	stored, err := a.store.GetAPIKeyByHash(ctx, HashAPIKey(token))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}
	if err := a.store.UpdateAPIKeyLastUsed(ctx, stored.ID); err != nil {
		a.logger.Warn("failed to update API key last use", zap.String("id", stored.ID), zap.Error(err))
	}
	return &Principal{Name: stored.Name, Method: MethodAPIKey, KeyID: stored.ID, Admin: a.isAdmin(stored.Name)}, nil
}
