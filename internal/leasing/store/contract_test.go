package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

var (
	errBoom = errors.New("boom")
	epoch   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

const (
	robot domain.AccountID = "robot"
	alice domain.AccountID = "alice"
)

// contractSuite exercises the ports.StoreTx contract. Backends embed it and
// set newTx.
type contractSuite struct {
	suite.Suite
	ctx   context.Context
	newTx func() ports.StoreTx
	tx    ports.StoreTx
}

func (s *contractSuite) SetupTest() {
	s.ctx = context.Background()
	s.tx = s.newTx()
}

func (s *contractSuite) in(fn func(ctx context.Context, st ports.Stores) error) error {
	return s.tx.RunInTx(s.ctx, fn)
}

func (s *contractSuite) must(fn func(ctx context.Context, st ports.Stores) error) {
	s.T().Helper()
	s.Require().NoError(s.in(fn))
}

func (s *contractSuite) balance(account domain.AccountID) models.Balance {
	var b models.Balance
	s.must(func(ctx context.Context, st ports.Stores) error {
		var err error
		b, err = st.Ledger().Balance(ctx, account)
		return err
	})
	return b
}

func (s *contractSuite) deposit(account domain.AccountID, amount domain.Amount) {
	s.must(func(ctx context.Context, st ports.Stores) error {
		return st.Ledger().Deposit(ctx, account, amount)
	})
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		Device:       robot,
		Client:       alice,
		Deadline:     epoch.Add(time.Minute),
		Payload:      []byte{1, 2, 3},
		Fee:          500,
		OriginDomain: 1,
		Bond:         100,
		CreatedAt:    epoch,
	}
}

func (s *contractSuite) TestDeviceRoundTrip() {
	profile, err := models.NewDeviceProfile(robot, 10_000, 1500*time.Millisecond, true, epoch)
	s.Require().NoError(err)

	s.must(func(ctx context.Context, st ports.Stores) error {
		_, err := st.Devices().Get(ctx, robot)
		s.ErrorIs(err, sentinel.ErrNotFound)
		return st.Devices().Save(ctx, profile)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		got, err := st.Devices().Get(ctx, robot)
		s.Require().NoError(err)
		s.Equal(models.DeviceReady, got.State)
		s.Equal(domain.Amount(10_000), got.Penalty)
		s.Equal(1500*time.Millisecond, got.MinLeadTime)
		s.True(got.UpdatedAt.Equal(epoch))

		got.Apply(models.DeviceBusy, epoch.Add(time.Second))
		return st.Devices().Save(ctx, got)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		got, err := st.Devices().Get(ctx, robot)
		s.Require().NoError(err)
		s.Equal(models.DeviceBusy, got.State)
		return st.Devices().Delete(ctx, robot)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		_, err := st.Devices().Get(ctx, robot)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(st.Devices().Delete(ctx, robot), sentinel.ErrNotFound)
		return nil
	})
}

func (s *contractSuite) TestOrderRoundTrip() {
	order := sampleOrder()
	s.must(func(ctx context.Context, st ports.Stores) error {
		return st.Orders().Create(ctx, order)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		got, err := st.Orders().Get(ctx, robot)
		s.Require().NoError(err)
		s.Equal(order.ID, got.ID)
		s.Equal(order.Client, got.Client)
		s.True(got.Deadline.Equal(order.Deadline))
		s.Equal(order.Payload, got.Payload)
		s.Equal(order.Fee, got.Fee)
		s.Equal(order.OriginDomain, got.OriginDomain)
		s.Equal(order.Bond, got.Bond)
		s.True(got.SameTerms(order))

		dup := sampleOrder()
		s.ErrorIs(st.Orders().Create(ctx, dup), sentinel.ErrConflict)
		return nil
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		return st.Orders().Delete(ctx, robot)
	})
	s.must(func(ctx context.Context, st ports.Stores) error {
		_, err := st.Orders().Get(ctx, robot)
		s.ErrorIs(err, sentinel.ErrNotFound)
		return nil
	})
}

func (s *contractSuite) TestRemoteOrderRoundTrip() {
	ro := &models.RemoteOrder{
		Client:    alice,
		Device:    robot,
		Domain:    2,
		Fee:       700,
		FeeHeld:   true,
		Deadline:  epoch.Add(time.Minute),
		Status:    models.RemoteOrderPending,
		PlacedAt:  epoch,
		UpdatedAt: epoch,
	}
	s.must(func(ctx context.Context, st ports.Stores) error {
		return st.RemoteOrders().Create(ctx, ro)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		s.ErrorIs(st.RemoteOrders().Create(ctx, ro.Clone()), sentinel.ErrConflict)

		got, err := st.RemoteOrders().Get(ctx, ro.Key())
		s.Require().NoError(err)
		s.Equal(alice, got.Client)
		s.True(got.FeeHeld)
		s.Equal(domain.Amount(700), got.Fee)

		got.Status = models.RemoteOrderAccepted
		got.UpdatedAt = epoch.Add(time.Second)
		return st.RemoteOrders().Save(ctx, got)
	})

	s.must(func(ctx context.Context, st ports.Stores) error {
		got, err := st.RemoteOrders().Get(ctx, ro.Key())
		s.Require().NoError(err)
		s.Equal(models.RemoteOrderAccepted, got.Status)

		_, err = st.RemoteOrders().Get(ctx, models.RemoteKey{Device: robot, Domain: 3})
		s.ErrorIs(err, sentinel.ErrNotFound)
		return st.RemoteOrders().Delete(ctx, ro.Key())
	})
}

func (s *contractSuite) TestRollbackDiscardsWrites() {
	s.deposit(alice, 1_000)

	err := s.in(func(ctx context.Context, st ports.Stores) error {
		if err := st.Ledger().Reserve(ctx, alice, 400); err != nil {
			return err
		}
		if err := st.Orders().Create(ctx, sampleOrder()); err != nil {
			return err
		}
		return errBoom
	})
	s.ErrorIs(err, errBoom)

	s.Equal(models.Balance{Account: alice, Free: 1_000}, s.balance(alice))
	s.must(func(ctx context.Context, st ports.Stores) error {
		_, err := st.Orders().Get(ctx, robot)
		s.ErrorIs(err, sentinel.ErrNotFound)
		return nil
	})
}

func (s *contractSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.tx.RunInTx(ctx, func(context.Context, ports.Stores) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}

func (s *contractSuite) TestLedger() {
	s.deposit(alice, 1_000)
	s.deposit(robot, 50)

	s.Run("unknown accounts are empty", func() {
		s.Equal(models.Balance{Account: "nobody"}, s.balance("nobody"))
	})

	s.Run("reserve", func() {
		s.must(func(ctx context.Context, st ports.Stores) error {
			ok, err := st.Ledger().CanReserve(ctx, alice, 1_000)
			s.Require().NoError(err)
			s.True(ok)
			ok, err = st.Ledger().CanReserve(ctx, alice, 1_001)
			s.Require().NoError(err)
			s.False(ok)

			s.ErrorIs(st.Ledger().Reserve(ctx, alice, 1_001), sentinel.ErrInsufficient)
			return st.Ledger().Reserve(ctx, alice, 600)
		})
		s.Equal(models.Balance{Account: alice, Free: 400, Reserved: 600}, s.balance(alice))
	})

	s.Run("unreserve returns the shortfall", func() {
		s.must(func(ctx context.Context, st ports.Stores) error {
			left, err := st.Ledger().Unreserve(ctx, alice, 100)
			s.Require().NoError(err)
			s.Zero(left)
			left, err = st.Ledger().Unreserve(ctx, alice, 600)
			s.Require().NoError(err)
			s.Equal(domain.Amount(100), left)
			return nil
		})
		s.Equal(models.Balance{Account: alice, Free: 1_000}, s.balance(alice))
	})

	s.Run("repatriate moves reserved funds", func() {
		s.must(func(ctx context.Context, st ports.Stores) error {
			if err := st.Ledger().Reserve(ctx, alice, 300); err != nil {
				return err
			}
			if err := st.Ledger().Repatriate(ctx, alice, robot, 200, ports.BucketFree); err != nil {
				return err
			}
			s.ErrorIs(st.Ledger().Repatriate(ctx, alice, robot, 101, ports.BucketFree), sentinel.ErrInsufficient)
			return st.Ledger().Repatriate(ctx, alice, robot, 100, ports.BucketReserved)
		})
		s.Equal(models.Balance{Account: alice, Free: 700}, s.balance(alice))
		s.Equal(models.Balance{Account: robot, Free: 250, Reserved: 100}, s.balance(robot))
	})

	s.Run("repatriate to self", func() {
		s.must(func(ctx context.Context, st ports.Stores) error {
			return st.Ledger().Repatriate(ctx, robot, robot, 100, ports.BucketFree)
		})
		s.Equal(models.Balance{Account: robot, Free: 350}, s.balance(robot))
	})

	s.Run("zero amounts are no-ops", func() {
		s.must(func(ctx context.Context, st ports.Stores) error {
			if err := st.Ledger().Reserve(ctx, "nobody", 0); err != nil {
				return err
			}
			left, err := st.Ledger().Unreserve(ctx, "nobody", 0)
			s.Zero(left)
			return err
		})
	})
}
