package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// Verifier is the part of *authcore.Engine the guard needs.
type Verifier interface {
	RequireValid(ctx context.Context, token string) (*authcore.Claims, error)
}

// ClaimsFromContext returns the claims placed in the request context by RequireValid.
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	return authcore.ClaimsFromContext(ctx)
}

// RequireValid verifies the bearer access token and stores its claims in the request
// context. Failures are answered with 401 (503 when a store is down) and never reach next.
func RequireValid(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteAuthError(w, authcore.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteAuthError(w, authcore.ErrTokenMalformed)
				return
			}

			claims, err := v.RequireValid(r.Context(), token)
			if err != nil {
				WriteAuthError(w, err)
				return
			}

			ctx := authcore.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
