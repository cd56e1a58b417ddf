// Package requesttime records when a request entered the server so logs and
// spans for one request share a single reference time.
package requesttime

import (
	"net/http"
	"time"

	"github.com/airalab/xcm-robobank-prototype/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
