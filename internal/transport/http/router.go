// Package httptransport assembles the public HTTP surface: middleware chain,
// caller and operator routes, health and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/handler"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/httputil"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/admin"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/auth"
	request "github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/request"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/requesttime"
)

// RouterDeps is everything NewRouter needs.
type RouterDeps struct {
	Leasing    *handler.Handler
	Validator  auth.JWTValidator
	AdminToken string
	Logger     *slog.Logger
	// Latency and Metrics are optional.
	Latency request.LatencyObserver
	Metrics http.Handler
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(deps.Logger))
	if deps.Latency != nil {
		r.Use(request.Latency(deps.Latency))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, deps.Logger))
		deps.Leasing.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
		deps.Leasing.RegisterAdmin(r)
	})
	return r
}
