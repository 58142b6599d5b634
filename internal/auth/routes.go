package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/cast-hub-go/internal/api"
	"github.com/strefethen/cast-hub-go/internal/apperrors"
	"github.com/strefethen/cast-hub-go/internal/config"
)

// RegisterRoutes wires auth routes to the router.
func RegisterRoutes(router chi.Router, cfg config.Config) {
	router.Method(http.MethodPost, "/v1/auth/token", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if cfg.APISecret == "" {
			return apperrors.NewValidationError("token auth is not configured", nil)
		}

		var body struct {
			ClientName string `json:"client_name"`
			Secret     string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("client_name is required", nil)
		}
		if body.ClientName == "" {
			return apperrors.NewValidationError("client_name is required", nil)
		}
		if subtle.ConstantTimeCompare([]byte(body.Secret), []byte(cfg.APISecret)) != 1 {
			return apperrors.NewUnauthorizedError("Invalid secret")
		}

		token, err := GenerateToken(cfg, body.ClientName)
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token")
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token",
			"access_token":   token,
			"expires_in_sec": cfg.TokenExpirySec,
		})
	}))
}
