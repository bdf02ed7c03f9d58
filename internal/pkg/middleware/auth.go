package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
)

// APIKeyAuth returns a middleware that requires a matching API key in the
// Authorization header (Bearer scheme) or the X-API-Key header. An empty
// configured key disables the check.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				auth := r.Header.Get("Authorization")
				presented = strings.TrimPrefix(auth, "Bearer ")
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				apperrors.WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "invalid or missing API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
