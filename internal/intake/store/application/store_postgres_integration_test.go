//go:build integration

package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ppdb/internal/intake/models"
	"ppdb/internal/intake/store/application"
	id "ppdb/pkg/domain"
	"ppdb/pkg/platform/sentinel"
	"ppdb/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *application.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = application.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "applications"))
}

func (s *PostgresStoreSuite) newApp(tenantID id.TenantID, batchID id.BatchID, seq int) *models.Application {
	app, err := models.NewApplication(
		id.NewApplicationID(), tenantID, batchID,
		fmt.Sprintf("PPDB2025GEL01%04d", seq), seq, 2025,
		models.Candidate{FullName: "Budi Santoso", NISN: "0051234567"},
		"IPA", "zonasi",
		time.Now().UTC().Truncate(time.Microsecond),
	)
	s.Require().NoError(err)
	return app
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundTrip() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	app := s.newApp(tenantID, batchID, 1)
	app.Notes = "walk-in submission"
	s.Require().NoError(app.SetDocumentStatus("ijazah", models.DocumentPending, app.CreatedAt))
	s.Require().NoError(s.store.Create(ctx, app))

	got, err := s.store.FindByID(ctx, tenantID, app.ID)
	s.Require().NoError(err)
	s.Equal(app.RegistrationID, got.RegistrationID)
	s.Equal(app.Candidate, got.Candidate)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(models.DocumentPending, got.Documents["ijazah"])
	s.Equal(1, got.Version)

	byReg, err := s.store.FindByRegistrationID(ctx, tenantID, app.RegistrationID)
	s.Require().NoError(err)
	s.Equal(app.ID, byReg.ID)
}

func (s *PostgresStoreSuite) TestDuplicateRegistrationID() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	s.Require().NoError(s.store.Create(ctx, s.newApp(tenantID, batchID, 1)))

	dup := s.newApp(tenantID, batchID, 1)
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)

	// The same identifier under another tenant is a different namespace.
	other := s.newApp(id.NewTenantID(), id.NewBatchID(), 1)
	s.NoError(s.store.Create(ctx, other))
}

func (s *PostgresStoreSuite) TestConcurrentCreateSameRegistrationID() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	const goroutines = 50
	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newApp(tenantID, batchID, 1))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load(), "exactly one create should win")
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestExecuteSerializesTransitions() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	app := s.newApp(tenantID, batchID, 1)
	s.Require().NoError(s.store.Create(ctx, app))

	const goroutines = 20
	var wg sync.WaitGroup
	var applied atomic.Int32

	// Only the first register may succeed; the rest observe registered and
	// fail the precondition inside the row lock.
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, tenantID, app.ID, func(a *models.Application) error {
				if err := a.CanRegister(); err != nil {
					return err
				}
				a.ApplyRegister(time.Now().UTC())
				return nil
			})
			if err == nil {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())

	got, err := s.store.FindByID(ctx, tenantID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRegistered, got.Status)
	s.Equal(2, got.Version, "only the winning transition bumps the version")
}

func (s *PostgresStoreSuite) TestExecuteFailedMutationWritesNothing() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	app := s.newApp(tenantID, id.NewBatchID(), 1)
	s.Require().NoError(s.store.Create(ctx, app))

	boom := errors.New("boom")
	_, err := s.store.Execute(ctx, tenantID, app.ID, func(a *models.Application) error {
		a.Status = models.StatusAccepted
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.FindByID(ctx, tenantID, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(1, got.Version)
}

func (s *PostgresStoreSuite) TestListByBatchAndMaxSequence() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	batchID := id.NewBatchID()

	for _, seq := range []int{2, 5, 3} {
		s.Require().NoError(s.store.Create(ctx, s.newApp(tenantID, batchID, seq)))
	}
	s.Require().NoError(s.store.Create(ctx, s.newApp(tenantID, id.NewBatchID(), 9)))

	apps, err := s.store.ListByBatch(ctx, tenantID, batchID)
	s.Require().NoError(err)
	s.Require().Len(apps, 3)
	s.Equal(2, apps[0].Sequence, "list is ordered by sequence")
	s.Equal(5, apps[2].Sequence)

	max, err := s.store.MaxSequence(ctx, tenantID, batchID)
	s.Require().NoError(err)
	s.Equal(5, max)
}

func (s *PostgresStoreSuite) TestFindUnknownIsNotFound() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewTenantID(), id.NewApplicationID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByRegistrationID(ctx, id.NewTenantID(), "PPDB2025GEL010001")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
