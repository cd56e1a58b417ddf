package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	jwttoken "github.com/airalab/xcm-robobank-prototype/internal/jwt_token"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/admin"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/auth"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil"
)

const (
	adminToken = "secret-token"

	robot domain.AccountID = "robot"
	alice domain.AccountID = "alice"
	bob   domain.AccountID = "bob"
)

type HandlerSuite struct {
	suite.Suite
	clock  *testutil.Clock
	svc    *service.Service
	tokens *jwttoken.JWTService
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.clock = testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.svc = service.New(store.NewMemoryTx(), nil, s.clock, service.DefaultConfig(1),
		service.WithLogger(logger),
	)
	s.tokens = jwttoken.NewJWTService("test-signing-key", "robobank", "robobank-api")

	h := New(s.svc, logger)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(s.tokens), logger))
		h.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	s.router = r

	s.Require().NoError(s.svc.SeedBalances(context.Background(), map[domain.AccountID]domain.Amount{
		robot: 100,
		alice: 1_000,
	}))
}

func (s *HandlerSuite) registerRobot() {
	rr := testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices", map[string]any{
		"penalty":     10,
		"min_lead_ms": 1000,
		"on":          true,
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	view := testutil.UnmarshalResponse[service.DeviceView](s.T(), rr)
	s.Equal(models.DeviceReady, view.Profile.State)
	s.Equal(time.Second, view.Profile.MinLeadTime)
}

func (s *HandlerSuite) authed(as domain.AccountID, method, path string, body any) *http.Request {
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	token, err := s.tokens.GenerateAccessToken(as, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *HandlerSuite) placeOrder(as domain.AccountID) int {
	rr := testutil.DoRequest(s.router, s.authed(as, http.MethodPost, "/orders", map[string]any{
		"device":   "robot",
		"deadline": s.clock.Now().Add(time.Hour),
		"payload":  []byte("move to dock 3"),
		"fee":      50,
	}))
	return rr.Code
}

func (s *HandlerSuite) TestMissingTokenIsRejected() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/devices", map[string]any{"penalty": 10})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/devices", map[string]any{"penalty": 10})
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestOrderLifecycle() {
	s.registerRobot()
	s.Equal(http.StatusAccepted, s.placeOrder(alice))

	rr := testutil.DoRequest(s.router, s.authed(bob, http.MethodGet, "/devices/robot", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	view := testutil.UnmarshalResponse[service.DeviceView](s.T(), rr)
	s.Equal(models.DeviceBusy, view.Profile.State)
	s.Require().NotNil(view.Order)
	s.Equal(alice, view.Order.Client)
	s.Equal([]byte("move to dock 3"), view.Order.Payload)

	rr = testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices/accept", map[string]any{}))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices/done", map[string]any{"on": true}))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, s.authed(robot, http.MethodGet, "/accounts/robot", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(models.Balance{Account: robot, Free: 150}, *testutil.UnmarshalResponse[models.Balance](s.T(), rr))

	rr = testutil.DoRequest(s.router, s.authed(robot, http.MethodGet, "/accounts/alice", nil))
	s.Equal(models.Balance{Account: alice, Free: 950}, *testutil.UnmarshalResponse[models.Balance](s.T(), rr))
}

func (s *HandlerSuite) TestErrorMapping() {
	s.Run("unknown device", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodGet, "/devices/ghost", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "no_device")
	})

	s.Run("power change while busy", func() {
		s.registerRobot()
		s.Require().Equal(http.StatusAccepted, s.placeOrder(alice))
		rr := testutil.DoRequest(s.router, s.authed(robot, http.MethodPut, "/devices/state", map[string]any{"on": false}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "illegal_state")
	})

	s.Run("cancel before deadline", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodPost, "/orders/robot/cancel", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "prohibited")
	})

	s.Run("cancel after deadline", func() {
		s.clock.Advance(2 * time.Hour)
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodPost, "/orders/robot/cancel", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("unaffordable fee", func() {
		rr := testutil.DoRequest(s.router, s.authed(bob, http.MethodPost, "/orders", map[string]any{
			"device":   "robot",
			"deadline": s.clock.Now().Add(time.Hour),
			"fee":      50,
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusPaymentRequired, "device_low_bail")
	})

	s.Run("remote order without channel", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodPost, "/orders", map[string]any{
			"device":   "robot",
			"deadline": s.clock.Now().Add(time.Hour),
			"fee":      50,
			"domain":   2,
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadGateway, "cannot_reach_destination")
	})

	s.Run("reclaim without a remote order", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodPost, "/orders/remote/2/robot/cancel", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "no_order")
	})
}

func (s *HandlerSuite) TestRequestValidation() {
	s.Run("unknown field", func() {
		rr := testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices", map[string]any{"penalty": 1, "colour": "red"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("negative lead time", func() {
		rr := testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices", map[string]any{"min_lead_ms": -1}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("order without deadline", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodPost, "/orders", map[string]any{"device": "robot"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("lead time that overflows", func() {
		rr := testutil.DoRequest(s.router, s.authed(robot, http.MethodPost, "/devices", map[string]any{"min_lead_ms": int64(1) << 62}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("bad remote domain", func() {
		rr := testutil.DoRequest(s.router, s.authed(alice, http.MethodGet, "/orders/remote/mars/robot", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestIdentityRemovalRequiresAdminToken() {
	s.registerRobot()

	req := testutil.NewRequest(s.T(), http.MethodPost, "/admin/identities/robot/removed")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req = testutil.NewRequest(s.T(), http.MethodPost, "/admin/identities/robot/removed")
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, s.authed(alice, http.MethodGet, "/devices/robot", nil))
	view := testutil.UnmarshalResponse[service.DeviceView](s.T(), rr)
	s.Equal(models.DeviceAbandoned, view.Profile.State)
}

func (s *HandlerSuite) TestHandlersRequireCallerIdentity() {
	h := New(s.svc, slog.New(slog.DiscardHandler))

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/devices/state", map[string]any{"on": false})
	rr := testutil.DoRequest(http.HandlerFunc(h.HandleSetState), req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	s.registerRobot()
	req = testutil.WithAccount(testutil.NewJSONRequest(s.T(), http.MethodPut, "/devices/state", map[string]any{"on": false}), "robot")
	rr = testutil.DoRequest(http.HandlerFunc(h.HandleSetState), req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}
