package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireRole admits requests whose verified claims carry one of roles. It must run after
// RequireValid; a request without verified claims is rejected as forbidden.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := authcore.ClaimsFromContext(r.Context())
			if err := authcore.RequireRole(claims, roles...); err != nil {
				WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middlewares so the first one listed runs first.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
