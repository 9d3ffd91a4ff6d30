//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"trafficwatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	contractSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := new(PostgresStoreSuite)
	s.newStore = func() recordStore { return NewPostgres(s.postgres.DB) }
	suite.Run(t, s)
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(Migrate(context.Background(), s.postgres.DB))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "violations"))
	s.contractSuite.SetupTest()
}

// TestMigrateIsIdempotent verifies the schema can be applied repeatedly.
func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(Migrate(s.ctx, s.postgres.DB))
}
