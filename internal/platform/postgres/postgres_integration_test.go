//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil/containers"
)

func TestOpenAndMigrate(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	db, err := Open(ctx, config.PostgresConfig{URL: pg.DSN, MaxOpenConns: 4})
	require.NoError(t, err)
	defer db.Close()

	// Schema is idempotent; the container already applied it once.
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM devices`).Scan(&n))
}

func TestOpenWithoutURL(t *testing.T) {
	db, err := Open(context.Background(), config.PostgresConfig{})
	require.NoError(t, err)
	require.Nil(t, db)
}
