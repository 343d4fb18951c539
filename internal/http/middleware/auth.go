package middleware

import (
	"net/http"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
)

// RequireAuth verifies the bearer token and stores the caller in context.
// Browsers cannot set headers on websocket upgrades, so an access_token query
// parameter is accepted as a fallback.
func RequireAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" {
				if token := r.URL.Query().Get("access_token"); token != "" {
					header = "Bearer " + token
				}
			}
			principal, err := verifier.ParseBearer(header)
			if err != nil {
				msg := "invalid token"
				if header == "" {
					msg = "missing authorization header"
				}
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}
			ctx := auth.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
