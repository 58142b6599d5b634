package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader is echoed back on every response so clients can
// correlate hub logs with their own.
const requestIDHeader = "x-request-id"

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDMiddleware stamps each request with the caller's request id,
// minting one when the header is absent.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stamped on the request, or ""
// outside the middleware.
func GetRequestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if value := r.Context().Value(requestIDKey); value != nil {
		if requestID, ok := value.(string); ok {
			return requestID
		}
	}
	return ""
}
