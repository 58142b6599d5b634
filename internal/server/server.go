package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/cast-hub-go/internal/api"
	"github.com/strefethen/cast-hub-go/internal/auth"
	"github.com/strefethen/cast-hub-go/internal/cast"
	"github.com/strefethen/cast-hub-go/internal/cast/castv2"
	"github.com/strefethen/cast-hub-go/internal/config"
	"github.com/strefethen/cast-hub-go/internal/hub"
	"github.com/strefethen/cast-hub-go/internal/mediainfo"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack exposes the underlying connection so the websocket upgrade
// works through the logging wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// DisableDiscovery keeps the hub off the network, for tests.
	DisableDiscovery bool
	// Transport overrides the device transport, for tests.
	Transport cast.TransportFactory
	// Store overrides the persistent store, for tests.
	Store *statestore.Store
}

// NewHandler builds the HTTP handler and returns the hub service plus
// a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, *hub.Service, func(context.Context) error, error) {
	store := options.Store
	if store == nil {
		log.Printf("Using database: %s", cfg.SQLiteDBPath)
		opened, err := statestore.Open(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		store = opened
	}

	factory := options.Transport
	if factory == nil {
		factory = castv2.New
	}

	resolver := mediainfo.NewResolver()
	hubService := hub.NewService(cfg, store, resolver, factory)
	if !options.DisableDiscovery {
		if err := hubService.Start(); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router)
	auth.RegisterRoutes(router, cfg)
	hub.RegisterRoutes(router, hubService)
	registerPropertyRoutes(router, cfg, store)
	registerStateRoutes(router, store)
	registerChangeStream(router, store)

	shutdown := func(ctx context.Context) error {
		hubService.Stop()
		resolver.Shutdown()
		return store.Close()
	}

	return router, hubService, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "cast-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
}
