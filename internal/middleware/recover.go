package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
)

// Recover turns a handler panic into a 500 JSON error.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			m.log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", GetRequestID(r.Context())).
				Msg("handler panicked")

			writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}()

		next.ServeHTTP(w, r)
	})
}
