package common

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	AddDomain(id domain.DomainID)
	Seed(id domain.DomainID, account domain.AccountID, amount domain.Amount) error
	Status() int
	ResponseField(field string) (any, error)
	Advance(d time.Duration)
	Drain() int
	Partition(id domain.DomainID, down bool)
}

// RegisterSteps registers world setup, time, channel and response steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Background steps
	ctx.Step(`^domains (\d+) and (\d+) share a channel$`, steps.domainsShareChannel)
	ctx.Step(`^"([^"]*)" holds (\d+) in domain (\d+)$`, steps.accountHolds)

	// Time and channel steps
	ctx.Step(`^(\d+) seconds pass$`, steps.secondsPass)
	ctx.Step(`^the channel is drained$`, steps.drainChannel)
	ctx.Step(`^domain (\d+) is unreachable$`, steps.partition)
	ctx.Step(`^domain (\d+) is reachable again$`, steps.heal)

	// Response assertion steps
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) domainsShareChannel(ctx context.Context, a, b int) error {
	s.tc.AddDomain(domain.DomainID(a))
	s.tc.AddDomain(domain.DomainID(b))
	return nil
}

func (s *commonSteps) accountHolds(ctx context.Context, account string, amount, dom int) error {
	return s.tc.Seed(domain.DomainID(dom), domain.AccountID(account), domain.Amount(amount))
}

func (s *commonSteps) secondsPass(ctx context.Context, n int) error {
	s.tc.Advance(time.Duration(n) * time.Second)
	return nil
}

func (s *commonSteps) drainChannel(ctx context.Context) error {
	s.tc.Drain()
	return nil
}

func (s *commonSteps) partition(ctx context.Context, dom int) error {
	s.tc.Partition(domain.DomainID(dom), true)
	return nil
}

func (s *commonSteps) heal(ctx context.Context, dom int) error {
	s.tc.Partition(domain.DomainID(dom), false)
	return nil
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, status int) error {
	if got := s.tc.Status(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}

func (s *commonSteps) responseErrorShouldBe(ctx context.Context, code string) error {
	got, err := s.tc.ResponseField("error")
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected error %q, got %v", code, got)
	}
	return nil
}
