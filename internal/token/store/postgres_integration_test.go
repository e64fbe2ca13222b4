//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trivigil/internal/token/models"
	"trivigil/internal/token/store"
	"trivigil/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "tokens"))
}

func testRecord(token string) *models.VerificationRecord {
	return &models.VerificationRecord{
		Token:        token,
		Product:      "NAT",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		DownloadLink: "https://trivigil.com/download/secure-file",
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	record := testRecord("NAT-PGAAAAAA")
	s.Require().NoError(s.store.Create(ctx, record))

	got, err := s.store.FindByToken(ctx, "NAT-PGAAAAAA")
	s.Require().NoError(err)
	s.Equal("NAT", got.Product)
	s.False(got.Verified)
	s.Nil(got.BuyerIdentity)

	_, err = s.store.FindByToken(ctx, "NAT-MISSING0")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateToken() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testRecord("NAT-PGBBBBBB")))
	err := s.store.Create(ctx, testRecord("NAT-PGBBBBBB"))
	s.ErrorIs(err, store.ErrDuplicateToken)
}

func (s *PostgresStoreSuite) TestBindBuyerCAS() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testRecord("NAT-PGCCCCCC")))

	s.Require().NoError(s.store.BindBuyer(ctx, "NAT-PGCCCCCC", 7))
	s.NoError(s.store.BindBuyer(ctx, "NAT-PGCCCCCC", 7), "idempotent for same buyer")
	s.ErrorIs(s.store.BindBuyer(ctx, "NAT-PGCCCCCC", 8), store.ErrIdentityBound)
	s.ErrorIs(s.store.BindBuyer(ctx, "NAT-MISSING0", 7), store.ErrNotFound)
}

// TestConcurrentBind verifies that racing binds from different buyers
// resolve to exactly one winner under real row locking.
func (s *PostgresStoreSuite) TestConcurrentBind() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testRecord("NAT-PGDDDDDD")))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.BindBuyer(ctx, "NAT-PGDDDDDD", int64(i+1)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresStoreSuite) TestPartialUpdate() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testRecord("NAT-PGEEEEEE")))

	ref := "abc123"
	got, err := s.store.Update(ctx, "NAT-PGEEEEEE", models.RecordUpdate{TransactionReference: &ref})
	s.Require().NoError(err)
	s.Equal("abc123", got.TransactionReference)
	s.False(got.Verified)

	verified := true
	adminRef := "abc123"
	got, err = s.store.Update(ctx, "NAT-PGEEEEEE", models.RecordUpdate{Verified: &verified, AdminReference: &adminRef})
	s.Require().NoError(err)
	s.True(got.Verified)
	s.Equal("abc123", got.TransactionReference, "reference survives unrelated update")
	s.Equal("abc123", got.AdminReference)
}

func (s *PostgresStoreSuite) TestListCountBuyers() {
	ctx := context.Background()
	for _, token := range []string{"NAT-PGLIST00", "NAT-PGLIST01", "NAT-PGLIST02"} {
		s.Require().NoError(s.store.Create(ctx, testRecord(token)))
	}
	s.Require().NoError(s.store.BindBuyer(ctx, "NAT-PGLIST00", 11))
	s.Require().NoError(s.store.BindBuyer(ctx, "NAT-PGLIST02", 3))

	all, err := s.store.List(ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 3)

	capped, err := s.store.List(ctx, 2)
	s.Require().NoError(err)
	s.Len(capped, 2)

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(3, count)

	buyers, err := s.store.Buyers(ctx)
	s.Require().NoError(err)
	s.Equal([]int64{3, 11}, buyers)
}
