package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &contractSuite{newTx: func() ports.StoreTx { return store.NewMemoryTx() }})
}

func TestMemoryTxReturnsCopies(t *testing.T) {
	ctx := context.Background()
	tx := store.NewMemoryTx()
	profile, err := models.NewDeviceProfile(robot, 1, 0, true, epoch)
	require.NoError(t, err)

	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		return st.Devices().Save(ctx, profile)
	}))
	profile.Apply(models.DeviceOff, epoch)

	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		got, err := st.Devices().Get(ctx, robot)
		require.NoError(t, err)
		assert.Equal(t, models.DeviceReady, got.State)
		got.Apply(models.DeviceBusy, epoch)
		return nil
	}))

	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		got, err := st.Devices().Get(ctx, robot)
		require.NoError(t, err)
		assert.Equal(t, models.DeviceReady, got.State, "mutation without Save must not leak")
		return nil
	}))
}

func TestMemoryTxSerializesWriters(t *testing.T) {
	ctx := context.Background()
	tx := store.NewMemoryTx()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
				return st.Ledger().Deposit(ctx, alice, 10)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		b, err := st.Ledger().Balance(ctx, alice)
		require.NoError(t, err)
		assert.EqualValues(t, 500, b.Free)
		return nil
	}))
}

func TestMemoryTxTimeoutCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := store.NewMemoryTx().RunInTx(ctx, func(context.Context, ports.Stores) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
