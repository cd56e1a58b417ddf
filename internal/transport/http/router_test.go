package httptransport

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "github.com/airalab/xcm-robobank-prototype/internal/jwt_token"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/handler"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/metrics"
	request "github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/request"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)
	svc := service.New(store.NewMemoryTx(), nil, nil, service.DefaultConfig(1))
	tokens := jwttoken.NewJWTService("router-test-key", "robobank", "robobank-api")

	return NewRouter(RouterDeps{
		Leasing:    handler.New(svc, logger),
		Validator:  jwttoken.NewJWTServiceAdapter(tokens),
		AdminToken: "admin",
		Logger:     logger,
		Latency:    m,
		Metrics:    m.Handler(),
	}), tokens
}

func TestHealthzEchoesRequestID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/healthz")
	req.Header.Set(request.HeaderRequestID, "req-42")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "req-42", rr.Header().Get(request.HeaderRequestID))
	testutil.AssertJSONContains(t, rr, "status", "ok")
}

func TestMetricsExposeRouteLatency(t *testing.T) {
	router, tokens := newTestRouter(t)

	token, err := tokens.GenerateAccessToken("alice", time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodGet, "/devices/robot")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "no_device")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	body := string(testutil.ReadBody(t, rr))
	assert.Contains(t, body, `robobank_http_request_duration_seconds_count{method="GET",route="/devices/{device}",status="404"} 1`)
}

func TestAdminRoutesNeedToken(t *testing.T) {
	router, tokens := newTestRouter(t)

	token, err := tokens.GenerateAccessToken("alice", time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodPost, "/admin/identities/robot/removed")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	req = testutil.NewRequest(t, http.MethodPost, "/admin/identities/robot/removed")
	req.Header.Set("X-Admin-Token", "admin")
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)
}
