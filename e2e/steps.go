// Package e2e runs the leasing API end to end: several domains, each with
// its own store, service and router, joined by an in-process channel.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/cucumber/godog"

	"github.com/airalab/xcm-robobank-prototype/e2e/steps/common"
	"github.com/airalab/xcm-robobank-prototype/e2e/steps/leasing"
	"github.com/airalab/xcm-robobank-prototype/internal/channel"
	jwttoken "github.com/airalab/xcm-robobank-prototype/internal/jwt_token"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/handler"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	httptransport "github.com/airalab/xcm-robobank-prototype/internal/transport/http"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil"
)

const adminToken = "e2e-admin"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type node struct {
	svc    *service.Service
	router http.Handler
}

// TestContext holds the world of one scenario.
type TestContext struct {
	clock  *testutil.Clock
	bus    *channel.Bus
	tokens *jwttoken.JWTService
	nodes  map[domain.DomainID]*node
	last   *httptest.ResponseRecorder
	body   map[string]any
}

func NewTestContext() *TestContext {
	tc := &TestContext{}
	tc.Reset()
	return tc
}

// Reset discards every domain and response.
func (tc *TestContext) Reset() {
	tc.clock = testutil.NewClock(epoch)
	tc.bus = channel.NewBus()
	tc.tokens = jwttoken.NewJWTService("e2e-signing-key", "robobank", "robobank-api")
	tc.nodes = make(map[domain.DomainID]*node)
	tc.last = nil
	tc.body = nil
}

func (tc *TestContext) AddDomain(id domain.DomainID) {
	logger := slog.New(slog.DiscardHandler)
	svc := service.New(store.NewMemoryTx(), tc.bus.Endpoint(id), tc.clock, service.DefaultConfig(id),
		service.WithLogger(logger),
	)
	tc.bus.Attach(id, svc)
	tc.nodes[id] = &node{
		svc: svc,
		router: httptransport.NewRouter(httptransport.RouterDeps{
			Leasing:    handler.New(svc, logger),
			Validator:  jwttoken.NewJWTServiceAdapter(tc.tokens),
			AdminToken: adminToken,
			Logger:     logger,
		}),
	}
}

func (tc *TestContext) node(id domain.DomainID) (*node, error) {
	n, ok := tc.nodes[id]
	if !ok {
		return nil, fmt.Errorf("domain %s is not set up", id)
	}
	return n, nil
}

func (tc *TestContext) Seed(id domain.DomainID, account domain.AccountID, amount domain.Amount) error {
	n, err := tc.node(id)
	if err != nil {
		return err
	}
	return n.svc.SeedBalances(context.Background(), map[domain.AccountID]domain.Amount{account: amount})
}

// Do sends a request to domain id's router as caller. An empty caller sends
// no token.
func (tc *TestContext) Do(id domain.DomainID, caller domain.AccountID, method, path string, body any) error {
	n, err := tc.node(id)
	if err != nil {
		return err
	}
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if !caller.IsZero() {
		token, err := tc.tokens.GenerateAccessToken(caller, time.Hour)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	tc.last = httptest.NewRecorder()
	n.router.ServeHTTP(tc.last, req)
	tc.body = nil
	if tc.last.Body.Len() > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(tc.last.Body.Bytes(), &decoded); err == nil {
			tc.body = decoded
		}
	}
	return nil
}

func (tc *TestContext) Admin(id domain.DomainID, method, path string) error {
	n, err := tc.node(id)
	if err != nil {
		return err
	}
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Admin-Token", adminToken)
	tc.last = httptest.NewRecorder()
	n.router.ServeHTTP(tc.last, req)
	tc.body = nil
	return nil
}

func (tc *TestContext) Status() int {
	if tc.last == nil {
		return 0
	}
	return tc.last.Code
}

func (tc *TestContext) ResponseField(field string) (any, error) {
	if tc.body == nil {
		return nil, fmt.Errorf("last response has no JSON object body")
	}
	v, ok := tc.body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %v", field, tc.body)
	}
	return v, nil
}

func (tc *TestContext) Now() time.Time {
	return tc.clock.Now()
}

func (tc *TestContext) Advance(d time.Duration) {
	tc.clock.Advance(d)
}

func (tc *TestContext) Drain() int {
	return tc.bus.Drain(context.Background())
}

func (tc *TestContext) Partition(id domain.DomainID, down bool) {
	tc.bus.Partition(id, down)
}

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	// Register common steps (world setup, time, channel, assertions)
	common.RegisterSteps(ctx, tc)

	// Register leasing-specific steps
	leasing.RegisterSteps(ctx, tc)
}
