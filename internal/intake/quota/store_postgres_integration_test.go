//go:build integration

package quota_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"ppdb/internal/intake/quota"
	id "ppdb/pkg/domain"
	"ppdb/pkg/testutil/containers"
)

type PostgresQuotaSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *quota.PostgresStore
}

func TestPostgresQuotaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresQuotaSuite))
}

func (s *PostgresQuotaSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = quota.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresQuotaSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "quota_reservations"))
}

func (s *PostgresQuotaSuite) key() quota.ResKey {
	return quota.ResKey{
		TenantID: id.NewTenantID(),
		BatchID:  id.NewBatchID(),
		Track:    "IPA",
		Pathway:  "zonasi",
	}
}

func (s *PostgresQuotaSuite) TestIncrementHonorsLimit() {
	ctx := context.Background()
	key := s.key()

	for i := 0; i < 3; i++ {
		ok, err := s.store.Increment(ctx, key, 3)
		s.Require().NoError(err)
		s.True(ok)
	}

	ok, err := s.store.Increment(ctx, key, 3)
	s.Require().NoError(err)
	s.False(ok, "fourth reservation must be declined at limit 3")

	n, err := s.store.Count(ctx, key)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *PostgresQuotaSuite) TestZeroLimitMeansUnbounded() {
	ctx := context.Background()
	key := s.key()

	for i := 0; i < 10; i++ {
		ok, err := s.store.Increment(ctx, key, 0)
		s.Require().NoError(err)
		s.True(ok)
	}

	n, err := s.store.Count(ctx, key)
	s.Require().NoError(err)
	s.Equal(10, n)
}

func (s *PostgresQuotaSuite) TestDecrementFreesASlot() {
	ctx := context.Background()
	key := s.key()

	ok, err := s.store.Increment(ctx, key, 1)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Increment(ctx, key, 1)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Decrement(ctx, key))

	ok, err = s.store.Increment(ctx, key, 1)
	s.Require().NoError(err)
	s.True(ok, "released capacity is available to the next reservation")
}

func (s *PostgresQuotaSuite) TestDecrementNeverGoesNegative() {
	ctx := context.Background()
	key := s.key()

	s.Require().NoError(s.store.Decrement(ctx, key))

	n, err := s.store.Count(ctx, key)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *PostgresQuotaSuite) TestConcurrentIncrementNeverOverAdmits() {
	ctx := context.Background()
	key := s.key()

	const limit = 5
	const workers = 50

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.Increment(ctx, key, limit)
			s.Require().NoError(err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(limit), admitted.Load())

	n, err := s.store.Count(ctx, key)
	s.Require().NoError(err)
	s.Equal(limit, n)
}
