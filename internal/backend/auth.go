package backend

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"lotusflow/studiosync/internal/logging"
)

type contextKey string

const deviceIDKey contextKey = "deviceID"

// AuthMiddleware validates the HS256 bearer token devices mint per request
// and stashes the device id (the token subject) on the context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logging.Warn("Rejected sync request with invalid token", "remote", r.RemoteAddr)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
				r = r.WithContext(withDeviceID(r.Context(), sub))
			}
			next.ServeHTTP(w, r)
		})
	}
}
