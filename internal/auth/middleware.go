package auth

import (
	"net/http"
	"strings"

	"github.com/banter-collective/banter/internal/middleware"
)

// Middleware extracts a bearer token from the Authorization header and,
// when it validates as an access token, attaches the viewer id to the
// request context. Requests without a token pass through anonymously;
// handlers that need authentication reject those themselves. A token
// that is present but invalid is rejected outright.
func Middleware(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := svc.ValidateToken(tokenString)
			if err != nil || claims.Type != TokenTypeAccess {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := middleware.SetViewerID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
