//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	"github.com/airalab/xcm-robobank-prototype/pkg/testutil/containers"
)

type postgresSuite struct {
	contractSuite
	pg *containers.PostgresContainer
}

func TestPostgresStore(t *testing.T) {
	s := &postgresSuite{pg: containers.GetManager().GetPostgres(t)}
	s.newTx = func() ports.StoreTx { return store.NewPostgresTx(s.pg.DB) }
	suite.Run(t, s)
}

func (s *postgresSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "devices", "orders", "remote_orders", "accounts"))
	s.contractSuite.SetupTest()
}
