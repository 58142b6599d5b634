package auth

import (
	"net/http"
	"strings"

	"github.com/strefethen/cast-hub-go/internal/api"
	"github.com/strefethen/cast-hub-go/internal/apperrors"
	"github.com/strefethen/cast-hub-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/token": {},
	"/health":        {},
}

var publicPrefixes = []string{
	"/state/",
	"/v1/ws",
}

// Middleware validates JWT bearer tokens for mutating routes.
// With no API secret configured the hub runs open, matching a
// LAN-only deployment.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APISecret == "" || isPublicRoute(r.URL.Path) || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing bearer token"))
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if _, err := VerifyToken(cfg, token); err != nil {
				if err == ErrTokenExpired {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired"))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
