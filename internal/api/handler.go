package api

import (
	"log"
	"net/http"

	"github.com/strefethen/cast-hub-go/internal/apperrors"
)

// Handler is a route handler that reports failures by returning an
// error; ServeHTTP translates the error into the JSON error envelope.
type Handler func(w http.ResponseWriter, r *http.Request) error

func (handler Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := handler(w, r); err != nil {
		WriteError(w, r, err)
	}
}

// RecovererMiddleware converts handler panics into 500 responses
// instead of dropping the connection.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf("panic recovered: %v", recovered)
				WriteError(w, r, apperrors.NewInternalError("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
