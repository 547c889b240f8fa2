package httpx

import (
	"net/http"
	"time"
)

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware listed becomes the outermost layer
// at request time.
func Chain(h http.Handler, layers ...Middleware) http.Handler {
	wrapped := h
	for i := len(layers) - 1; i >= 0; i-- {
		wrapped = layers[i](wrapped)
	}
	return wrapped
}

// WithBodyLimit caps the request body; reads past the limit fail inside
// the handler with http.MaxBytesError.
func WithBodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds the whole handler run, replying 503 when exceeded.
func WithTimeout(limit time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, limit, "request timed out")
	}
}
