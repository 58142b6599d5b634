package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/cast-hub-go/internal/api"
	"github.com/strefethen/cast-hub-go/internal/apperrors"
	"github.com/strefethen/cast-hub-go/internal/auth"
	"github.com/strefethen/cast-hub-go/internal/config"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

// commandOrigin tags API writes so device facades can tell commands
// from their own echoes.
func commandOrigin(cfg config.Config, r *http.Request) string {
	client := "anonymous"
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		if name, err := auth.VerifyToken(cfg, token); err == nil && name != "" {
			client = name
		}
	}
	return "system.api." + client
}

func formatProperty(name string, d statestore.Descriptor, v statestore.Value, hasValue bool) map[string]any {
	formatted := map[string]any{
		"object":     "property",
		"name":       name,
		"descriptor": d,
	}
	if hasValue {
		formatted["val"] = v.Val
		formatted["ack"] = v.Ack
		formatted["from"] = v.From
		formatted["updated_at"] = v.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return formatted
}

func registerPropertyRoutes(router chi.Router, cfg config.Config, store *statestore.Store) {
	router.Method(http.MethodGet, "/v1/properties", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		prefix := r.URL.Query().Get("prefix")
		descriptors := store.List(prefix)

		names := make([]string, 0, len(descriptors))
		for name := range descriptors {
			names = append(names, name)
		}
		sort.Strings(names)

		formatted := make([]map[string]any, 0, len(names))
		for _, name := range names {
			v, ok := store.GetValue(name)
			formatted = append(formatted, formatProperty(name, descriptors[name], v, ok))
		}
		return api.WriteList(w, r.URL.Path, formatted)
	}))

	router.Method(http.MethodGet, "/v1/properties/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		name := chi.URLParam(r, "name")
		d, ok := store.Descriptor(name)
		if !ok {
			return apperrors.NewNotFoundError("property not found: "+name, map[string]any{"name": name})
		}
		v, hasValue := store.GetValue(name)
		return api.WriteResource(w, http.StatusOK, formatProperty(name, d, v, hasValue))
	}))

	router.Method(http.MethodPut, "/v1/properties/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		name := chi.URLParam(r, "name")
		d, ok := store.Descriptor(name)
		if !ok {
			return apperrors.NewAppError(apperrors.ErrorCodeUnsupportedProperty, "property not declared: "+name, 404, map[string]any{"name": name})
		}
		if !d.Write {
			return apperrors.NewAppError(apperrors.ErrorCodePropertyReadOnly, "property is read only: "+name, 409, map[string]any{"name": name})
		}

		var body struct {
			Val any `json:"val"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("val is required", nil)
		}

		// API writes are commands: unacknowledged until a device
		// facade applies and confirms them.
		if err := store.SetValue(name, body.Val, false, commandOrigin(cfg, r)); err != nil {
			return apperrors.NewInternalError("Failed to write property")
		}
		v, _ := store.GetValue(name)
		return api.WriteResource(w, http.StatusOK, formatProperty(name, d, v, true))
	}))
}

// registerStateRoutes serves exported binary payloads, i.e. local
// files a device plays back through the hub.
func registerStateRoutes(router chi.Router, store *statestore.Store) {
	router.Method(http.MethodGet, "/state/{name}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		name := chi.URLParam(r, "name")
		if data, ok := store.GetBinary(name); ok {
			contentType := "application/octet-stream"
			if strings.HasSuffix(name, ".mp3") {
				contentType = "audio/mpeg"
			}
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(http.StatusOK)
			_, err := w.Write(data)
			return err
		}
		if v, ok := store.GetValue(name); ok {
			return api.WriteJSON(w, http.StatusOK, v)
		}
		return apperrors.NewNotFoundError("no state for: "+name, map[string]any{"name": name})
	}))
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The hub serves LAN clients; cross-origin browsers are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsChange struct {
	Object    string    `json:"object"`
	Name      string    `json:"name"`
	Val       any       `json:"val"`
	Ack       bool      `json:"ack"`
	From      string    `json:"from"`
	UpdatedAt time.Time `json:"updated_at"`
}

// registerChangeStream exposes the property bus over a websocket. Each
// committed write is pushed as one JSON message; an optional prefix
// query narrows the stream to one device.
func registerChangeStream(router chi.Router, store *statestore.Store) {
	router.Get("/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		prefix := r.URL.Query().Get("prefix")

		// Buffered so a slow client drops changes instead of
		// blocking the bus fan-out.
		changes := make(chan wsChange, 64)
		unsubscribe := store.Subscribe(func(name string, v statestore.Value) {
			if prefix != "" && !strings.HasPrefix(name, prefix) {
				return
			}
			select {
			case changes <- wsChange{Object: "change", Name: name, Val: v.Val, Ack: v.Ack, From: v.From, UpdatedAt: v.UpdatedAt}:
			default:
			}
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			defer unsubscribe()
			defer conn.Close()
			for {
				select {
				case change := <-changes:
					if err := conn.WriteJSON(change); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()
	})
}
