package hub

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/cast-hub-go/internal/api"
	"github.com/strefethen/cast-hub-go/internal/apperrors"
	"github.com/strefethen/cast-hub-go/internal/device"
)

// RegisterRoutes wires device routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		facades := service.GetDevices()
		formatted := make([]map[string]any, 0, len(facades))
		for _, facade := range facades {
			formatted = append(formatted, formatDevice(facade))
		}
		return api.WriteList(w, r.URL.Path, formatted)
	}))

	router.Method(http.MethodGet, "/v1/devices/{device_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")
		facade := service.GetDevice(deviceID)
		if facade == nil {
			return apperrors.NewDeviceNotFound(deviceID)
		}
		return api.WriteResource(w, http.StatusOK, formatDevice(facade))
	}))

	router.Method(http.MethodPost, "/v1/devices/{device_id}/reconnect", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		deviceID := chi.URLParam(r, "device_id")
		if !service.Reconnect(deviceID) {
			return apperrors.NewDeviceNotFound(deviceID)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object": "reconnect",
			"id":     deviceID,
		})
	}))
}

func formatDevice(facade *device.Facade) map[string]any {
	flags := facade.Flags()
	target := facade.Target()
	status := facade.PlayerState()
	return map[string]any{
		"object":            "device",
		"id":                facade.ID(),
		"name":              facade.Name(),
		"address":           target.Host,
		"port":              target.Port,
		"connected":         flags.ClientConnected,
		"player_connecting": flags.PlayerConnecting,
		"player_connected":  flags.PlayerConnected,
		"terminal":          facade.Terminal(),
		"retries":           facade.Retries(),
		"player_state":      strings.ToLower(string(status.PlayerState)),
	}
}
