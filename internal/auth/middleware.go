package auth

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Middleware rejects requests without a valid bearer token with 401 and
// stores the caller's user id in the request context otherwise.
func Middleware(v *Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				var userID string
				if userID, err = v.Verify(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
					return
				}
			}

			logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected unauthenticated request")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorised", "kind": "auth"})
		})
	}
}
