package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bcnelson/teamsync/internal/auth"
	"github.com/bcnelson/teamsync/internal/domain"
)

// Auth creates authentication middleware. The resolved principal is stored
// in the request context.
func Auth(authn *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract the credential from the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid authorization header format")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "empty bearer token")
				return
			}

			principal, err := authn.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrForbidden):
				writeError(w, http.StatusForbidden, domain.ErrCodeForbidden, err.Error())
				return
			case errors.Is(err, domain.ErrInvalidAPIKey), errors.Is(err, domain.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid credentials")
				return
			default:
				writeError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects principals that are not admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil || !p.Admin {
			writeError(w, http.StatusForbidden, domain.ErrCodeForbidden, "only admins can do this")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}
