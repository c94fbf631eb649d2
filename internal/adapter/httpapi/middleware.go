package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware validates the authorization token on every request.
// If the token is missing or invalid, it responds 401 without calling
// the next handler.
func AuthMiddleware(validToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respondError(w, http.StatusUnauthorized, "missing authorization header", nil)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(validToken)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
