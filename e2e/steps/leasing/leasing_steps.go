package leasing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(id domain.DomainID, caller domain.AccountID, method, path string, body any) error
	Admin(id domain.DomainID, method, path string) error
	Status() int
	ResponseField(field string) (any, error)
	Now() time.Time
}

// RegisterSteps registers device, order and ledger step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &leasingSteps{tc: tc}

	// Device owner steps
	ctx.Step(`^"([^"]*)" registers a device in domain (\d+) with penalty (\d+)$`, steps.registerDevice)
	ctx.Step(`^"([^"]*)" switches the device off in domain (\d+)$`, steps.switchOff)
	ctx.Step(`^"([^"]*)" accepts the order in domain (\d+)$`, steps.acceptOrder)
	ctx.Step(`^"([^"]*)" rejects the order in domain (\d+)$`, steps.rejectOrder)
	ctx.Step(`^"([^"]*)" completes the order in domain (\d+)$`, steps.completeOrder)
	ctx.Step(`^the identity of "([^"]*)" is removed in domain (\d+)$`, steps.removeIdentity)

	// Client steps
	ctx.Step(`^"([^"]*)" orders "([^"]*)" in domain (\d+) with fee (\d+) due in (\d+) seconds$`, steps.placeLocalOrder)
	ctx.Step(`^"([^"]*)" in domain (\d+) orders "([^"]*)" from domain (\d+) with fee (\d+) due in (\d+) seconds$`, steps.placeRemoteOrder)
	ctx.Step(`^"([^"]*)" cancels the order for "([^"]*)" in domain (\d+)$`, steps.cancelOrder)
	ctx.Step(`^"([^"]*)" in domain (\d+) reclaims the order for "([^"]*)" from domain (\d+)$`, steps.reclaimRemoteOrder)

	// Assertion steps
	ctx.Step(`^device "([^"]*)" in domain (\d+) should be "([^"]*)"$`, steps.deviceShouldBe)
	ctx.Step(`^"([^"]*)" in domain (\d+) should have (\d+) free and (\d+) reserved$`, steps.balanceShouldBe)
	ctx.Step(`^the sovereign account of domain (\d+) in domain (\d+) should have (\d+) free$`, steps.sovereignShouldHave)
}

type leasingSteps struct {
	tc TestContext
}

func (s *leasingSteps) registerDevice(ctx context.Context, owner string, dom, penalty int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(owner), http.MethodPost, "/devices", map[string]any{
		"penalty":     penalty,
		"min_lead_ms": 1000,
		"on":          true,
	})
}

func (s *leasingSteps) switchOff(ctx context.Context, owner string, dom int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(owner), http.MethodPut, "/devices/state", map[string]any{"on": false})
}

func (s *leasingSteps) acceptOrder(ctx context.Context, owner string, dom int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(owner), http.MethodPost, "/devices/accept", map[string]any{})
}

func (s *leasingSteps) rejectOrder(ctx context.Context, owner string, dom int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(owner), http.MethodPost, "/devices/accept", map[string]any{
		"reject": true,
		"on":     true,
	})
}

func (s *leasingSteps) completeOrder(ctx context.Context, owner string, dom int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(owner), http.MethodPost, "/devices/done", map[string]any{"on": true})
}

func (s *leasingSteps) removeIdentity(ctx context.Context, account string, dom int) error {
	return s.tc.Admin(domain.DomainID(dom), http.MethodPost, "/admin/identities/"+account+"/removed")
}

func (s *leasingSteps) placeLocalOrder(ctx context.Context, client, device string, dom, fee, seconds int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(client), http.MethodPost, "/orders", map[string]any{
		"device":   device,
		"deadline": s.tc.Now().Add(time.Duration(seconds) * time.Second),
		"payload":  []byte("e2e"),
		"fee":      fee,
	})
}

func (s *leasingSteps) placeRemoteOrder(ctx context.Context, client string, from int, device string, to, fee, seconds int) error {
	return s.tc.Do(domain.DomainID(from), domain.AccountID(client), http.MethodPost, "/orders", map[string]any{
		"device":   device,
		"deadline": s.tc.Now().Add(time.Duration(seconds) * time.Second),
		"payload":  []byte("e2e"),
		"fee":      fee,
		"domain":   to,
	})
}

func (s *leasingSteps) cancelOrder(ctx context.Context, client, device string, dom int) error {
	return s.tc.Do(domain.DomainID(dom), domain.AccountID(client), http.MethodPost, "/orders/"+device+"/cancel", nil)
}

func (s *leasingSteps) reclaimRemoteOrder(ctx context.Context, client string, from int, device string, to int) error {
	path := fmt.Sprintf("/orders/remote/%d/%s/cancel", to, device)
	return s.tc.Do(domain.DomainID(from), domain.AccountID(client), http.MethodPost, path, nil)
}

func (s *leasingSteps) deviceShouldBe(ctx context.Context, device string, dom int, state string) error {
	if err := s.tc.Do(domain.DomainID(dom), "observer", http.MethodGet, "/devices/"+device, nil); err != nil {
		return err
	}
	profile, err := s.tc.ResponseField("profile")
	if err != nil {
		return err
	}
	fields, ok := profile.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected profile %v", profile)
	}
	if fields["state"] != state {
		return fmt.Errorf("expected device %s to be %q, got %v", device, state, fields["state"])
	}
	return nil
}

func (s *leasingSteps) balanceShouldBe(ctx context.Context, account string, dom, free, reserved int) error {
	return s.expectBalance(domain.DomainID(dom), domain.AccountID(account), free, &reserved)
}

func (s *leasingSteps) sovereignShouldHave(ctx context.Context, of, in, free int) error {
	account := domain.SovereignAccount(domain.SovereignSibling, domain.DomainID(of))
	return s.expectBalance(domain.DomainID(in), account, free, nil)
}

func (s *leasingSteps) expectBalance(dom domain.DomainID, account domain.AccountID, free int, reserved *int) error {
	if err := s.tc.Do(dom, "observer", http.MethodGet, "/accounts/"+account.String(), nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("balance lookup for %s returned %d", account, s.tc.Status())
	}
	got, err := s.tc.ResponseField("free")
	if err != nil {
		return err
	}
	if got != float64(free) {
		return fmt.Errorf("expected %s to have %d free, got %v", account, free, got)
	}
	if reserved == nil {
		return nil
	}
	got, err = s.tc.ResponseField("reserved")
	if err != nil {
		return err
	}
	if got != float64(*reserved) {
		return fmt.Errorf("expected %s to have %d reserved, got %v", account, *reserved, got)
	}
	return nil
}
